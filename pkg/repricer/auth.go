/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repricer

import (
	"context"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// IsAuthed reports whether both the sender and the pusher of event hold the
// admin or billing_manager role in the pushing organization.
func (u *Updater) IsAuthed(ctx context.Context, event any) bool {
	log := clog.FromContext(ctx)
	push, ok := event.(*github.PushEvent)
	if !ok {
		log.Debug("Not a push event")
		return false
	}

	org := pushOwner(push)
	c, err := u.client(ctx, org)
	if err != nil {
		log.Errorf("Checking authorization: %v", err)
		return false
	}

	sender := push.GetSender().GetLogin()
	pusher := push.GetPusher().GetName()

	senderOK := u.hasPricingRole(ctx, c, org, sender)
	pusherOK := u.hasPricingRole(ctx, c, org, pusher)
	if !pusherOK {
		log.With("pusher", pusher).Error("Pusher is not an admin or billing manager")
	}
	if !senderOK {
		log.With("sender", sender).Error("Sender is not an admin or billing manager")
	}
	return senderOK && pusherOK
}

func (u *Updater) hasPricingRole(ctx context.Context, c Client, org, login string) bool {
	if login == "" {
		return false
	}
	ok, err := c.IsAdminOrBillingManager(ctx, org, login)
	if err != nil {
		clog.FromContext(ctx).Warnf("Looking up role of %s: %v", login, err)
		return false
	}
	return ok
}
