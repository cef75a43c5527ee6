package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"equitydesk/engine/library"
	"github.com/nbd-wtf/go-nostr"
)

// NostrNotifier signs each notification as a nostr event and publishes it to relays.
type NostrNotifier struct {
	wallet       library.Wallet
	relays       []string
	doNotPublish bool
	now          func() time.Time
}

func NewNostrNotifier(wallet library.Wallet, relays []string, doNotPublish bool) *NostrNotifier {
	return &NostrNotifier{
		wallet:       wallet,
		relays:       relays,
		doNotPublish: doNotPublish,
		now:          time.Now,
	}
}

// BuildEvent returns the signed event for n.
func (n *NostrNotifier) BuildEvent(notification Notification) (nostr.Event, error) {
	content, err := json.Marshal(notification.Payload)
	if err != nil {
		return nostr.Event{}, fmt.Errorf("could not encode %s notification for %s: %w", notification.Kind, notification.Subject, err)
	}
	tags := nostr.Tags{
		nostr.Tag{"subject", notification.Subject},
		nostr.Tag{"type", notification.Kind.String()},
	}
	if notification.Investor != "" {
		tags = append(tags, nostr.Tag{"investor", notification.Investor})
	}
	e := nostr.Event{
		PubKey:    n.wallet.Account,
		CreatedAt: nostr.Timestamp(n.now().Unix()),
		Kind:      int(notification.Kind),
		Tags:      tags,
		Content:   string(content),
	}
	e.ID = e.GetID()
	if err := e.Sign(n.wallet.PrivateKey); err != nil {
		return nostr.Event{}, fmt.Errorf("could not sign %s notification for %s: %w", notification.Kind, notification.Subject, err)
	}
	return e, nil
}

func (n *NostrNotifier) Notify(ctx context.Context, notification Notification) {
	e, err := n.BuildEvent(notification)
	if err != nil {
		library.LogCLI(err.Error(), 2)
		return
	}
	if n.doNotPublish {
		library.LogCLI(fmt.Sprintf("notification %s %s for %s not published (doNotPublish)", e.ID, notification.Kind, notification.Subject), 3)
		return
	}
	go PublishToRelays(context.WithoutCancel(ctx), []nostr.Event{e}, n.relays)
}
