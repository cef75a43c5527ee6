package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"equitydesk/engine/actors"
	"equitydesk/engine/library"
)

func TestBuildEventIsSignedAndTagged(t *testing.T) {
	w, err := actors.NewWallet()
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	n := NewNostrNotifier(w, nil, true)
	n.now = func() time.Time { return time.Unix(1700000000, 0) }

	e, err := n.BuildEvent(Notification{
		Kind:     KindVestingProcessed,
		Subject:  "grant-1",
		Investor: "inv-1",
		Payload:  map[string]int64{"vested_shares": 240},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ok, err := e.CheckSignature(); !ok || err != nil {
		t.Fatalf("expected valid signature, got %v %v", ok, err)
	}
	if e.Kind != 642100 || e.PubKey != w.Account {
		t.Fatalf("unexpected kind/pubkey %d %s", e.Kind, e.PubKey)
	}
	if subject, _ := library.TagValue(e, "subject"); subject != "grant-1" {
		t.Errorf("expected subject tag grant-1, got %q", subject)
	}
	if investor, _ := library.TagValue(e, "investor"); investor != "inv-1" {
		t.Errorf("expected investor tag inv-1, got %q", investor)
	}
	var payload map[string]int64
	if err := json.Unmarshal([]byte(e.Content), &payload); err != nil || payload["vested_shares"] != 240 {
		t.Errorf("unexpected content %q", e.Content)
	}
}

func TestNotifyWithoutPublishingDoesNotBlock(t *testing.T) {
	w, _ := actors.NewWallet()
	n := NewNostrNotifier(w, []string{"wss://example.invalid"}, true)
	n.Notify(context.Background(), Notification{Kind: KindBuybackExecuted, Subject: "round-1"})
}

func TestKindString(t *testing.T) {
	if KindGrantCancelled.String() != "grant_cancelled" {
		t.Errorf("unexpected %s", KindGrantCancelled)
	}
	if Kind(1).String() != "kind_1" {
		t.Errorf("unexpected %s", Kind(1))
	}
}

func TestPublishToUnreachableRelayReturns(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		PublishToRelays(ctx, nil, []string{"ws://127.0.0.1:1", "ws://127.0.0.1:2"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing to unreachable relays did not return")
	}
}
