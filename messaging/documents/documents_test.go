package documents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"equitydesk/engine/library"
	"equitydesk/state"
)

type recordingGenerator struct {
	mu        sync.Mutex
	deleted   []library.InvestorID
	generated []library.HoldingID
	failFor   library.InvestorID
	done      chan struct{}
}

func (r *recordingGenerator) DeleteCertificates(_ context.Context, _ library.CompanyID, investor library.InvestorID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, investor)
	if investor == r.failFor {
		r.done <- struct{}{}
		return errors.New("storage unavailable")
	}
	return nil
}

func (r *recordingGenerator) GenerateCertificate(_ context.Context, h state.ShareHolding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generated = append(r.generated, h.ID)
	r.done <- struct{}{}
	return nil
}

func waitFor(t *testing.T, ch chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d signals", i, n)
		}
	}
}

func TestDispatcherRegeneratesRemainingHoldings(t *testing.T) {
	gen := &recordingGenerator{done: make(chan struct{}, 16), failFor: "mallory"}
	d := NewDispatcher(gen, 2)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	d.Regenerate(Request{CompanyID: "acme", InvestorID: "bob", Holdings: []state.ShareHolding{
		{ID: "h1", NumberOfShares: 10},
		{ID: "empty", NumberOfShares: 0},
		{ID: "h2", NumberOfShares: 5},
	}})
	d.Regenerate(Request{CompanyID: "acme", InvestorID: "mallory", Holdings: []state.ShareHolding{{ID: "h3", NumberOfShares: 1}}})
	waitFor(t, gen.done, 3)
	cancel()
	d.Wait()

	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.deleted) != 2 {
		t.Fatalf("expected deletes for both investors, got %v", gen.deleted)
	}
	if len(gen.generated) != 2 {
		t.Fatalf("expected certificates for h1 and h2 only, got %v", gen.generated)
	}
	for _, id := range gen.generated {
		if id == "empty" || id == "h3" {
			t.Fatalf("unexpected certificate for %s", id)
		}
	}
}

func TestRegenerateDoesNotBlockWithoutWorkers(t *testing.T) {
	d := NewDispatcher(LogGenerator{}, 1)
	for i := 0; i < 100; i++ {
		d.Regenerate(Request{InvestorID: "bob"})
	}
	if d.Pending() != 100 {
		t.Fatalf("expected 100 queued requests, got %d", d.Pending())
	}
}
