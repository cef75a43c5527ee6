package notify

import (
	"context"
	"fmt"
)

// Kind is the nostr event kind a notification is published under.
type Kind int

const (
	KindVestingProcessed Kind = 642100
	KindVestingCancelled Kind = 642101
	KindGrantCancelled   Kind = 642102
	KindBuybackExecuted  Kind = 642200
)

func (k Kind) String() string {
	switch k {
	case KindVestingProcessed:
		return "vesting_processed"
	case KindVestingCancelled:
		return "vesting_cancelled"
	case KindGrantCancelled:
		return "grant_cancelled"
	case KindBuybackExecuted:
		return "buyback_executed"
	}
	return fmt.Sprintf("kind_%d", int(k))
}

// Notification is a state change investors or operators are told about.
type Notification struct {
	Kind     Kind
	Subject  string // grant, event or round id
	Investor string
	Payload  any
}

// Notifier delivers notifications. Delivery is best effort and must not block the caller's transaction.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}
