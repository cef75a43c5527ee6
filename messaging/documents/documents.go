package documents

import (
	"context"
	"fmt"

	"equitydesk/engine/library"
	"equitydesk/state"
	"github.com/sasha-s/go-deadlock"
)

// CertificateGenerator renders and stores share certificates.
type CertificateGenerator interface {
	DeleteCertificates(ctx context.Context, company library.CompanyID, investor library.InvestorID) error
	GenerateCertificate(ctx context.Context, holding state.ShareHolding) error
}

// Request replaces an investor's certificates with one per remaining holding.
type Request struct {
	CompanyID  library.CompanyID
	InvestorID library.InvestorID
	Holdings   []state.ShareHolding
}

// Dispatcher runs certificate requests on background workers. Regenerate never blocks.
type Dispatcher struct {
	generator CertificateGenerator
	workers   int
	mutex     *deadlock.Mutex
	queue     *library.Queue[Request]
	wake      chan struct{}
	wg        deadlock.WaitGroup
}

func NewDispatcher(generator CertificateGenerator, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		generator: generator,
		workers:   workers,
		mutex:     &deadlock.Mutex{},
		queue:     library.NewQueue[Request](16),
		wake:      make(chan struct{}, 1),
	}
}

func (d *Dispatcher) Regenerate(req Request) {
	d.mutex.Lock()
	d.queue.Push(req)
	d.mutex.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of queued requests no worker has picked up yet.
func (d *Dispatcher) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.queue.Len()
}

// Start launches the workers. They stop when ctx is done; queued requests are dropped.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

// Wait blocks until every worker has stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	if n := d.Pending(); n > 0 {
		library.LogCLI(fmt.Sprintf("%d certificate requests dropped at shutdown", n), 2)
	}
}

func (d *Dispatcher) next() (Request, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.queue.Pop()
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		req, ok := d.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-d.wake:
			}
			continue
		}
		d.handle(ctx, req)
		// another worker may be asleep while requests are still queued
		if d.Pending() > 0 {
			select {
			case d.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) {
	if err := d.generator.DeleteCertificates(ctx, req.CompanyID, req.InvestorID); err != nil {
		library.LogCLI(fmt.Sprintf("deleting certificates for investor %s: %s", req.InvestorID, err), 2)
		return
	}
	for _, h := range req.Holdings {
		if h.NumberOfShares <= 0 {
			continue
		}
		if err := d.generator.GenerateCertificate(ctx, h); err != nil {
			library.LogCLI(fmt.Sprintf("generating certificate for holding %s: %s", h.ID, err), 2)
		}
	}
}

// LogGenerator stands in for a document service by logging what it would do.
type LogGenerator struct{}

func (LogGenerator) DeleteCertificates(_ context.Context, company library.CompanyID, investor library.InvestorID) error {
	library.LogCLI(fmt.Sprintf("certificates for investor %s in company %s deleted", investor, company), 4)
	return nil
}

func (LogGenerator) GenerateCertificate(_ context.Context, h state.ShareHolding) error {
	library.LogCLI(fmt.Sprintf("certificate for holding %s: %d %s shares of %s", h.ID, h.NumberOfShares, h.ShareClass, h.InvestorID), 4)
	return nil
}
