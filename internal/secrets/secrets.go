/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package secrets

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
)

// Prefix marks the environment variables holding webhook secrets. Several
// may be set at once so a secret can be rotated without dropping deliveries.
const Prefix = "WEBHOOK_SECRET"

// LoadFromEnv returns the non-empty webhook secrets ordered by variable name.
func LoadFromEnv(ctx context.Context) [][]byte {
	var keys []string
	values := map[string]string{}
	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(k, Prefix) {
			continue
		}
		if v == "" {
			clog.WarnContextf(ctx, "ignoring empty secret: %q", k)
			continue
		}
		keys = append(keys, k)
		values[k] = v
	}
	slices.Sort(keys)

	secrets := make([][]byte, 0, len(keys))
	for _, k := range keys {
		clog.InfoContextf(ctx, "loading secret: %q", k)
		secrets = append(secrets, []byte(values[k]))
	}
	return secrets
}
