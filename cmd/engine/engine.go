package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"equitydesk/engine/actors"
	"equitydesk/engine/library"
	"equitydesk/messaging/documents"
	"equitydesk/messaging/notify"
	"equitydesk/messaging/sweeper"
	"equitydesk/state"
	"equitydesk/state/buybacks"
	"equitydesk/state/captable"
	"equitydesk/state/seed"
	"equitydesk/state/tender"
	"equitydesk/state/vesting"
	"github.com/spf13/viper"
)

func main() {
	// Settings live in a Viper configuration under rootDir, written with defaults on first run.
	conf := viper.New()
	actors.InitConfig(conf)
	// make the config accessible globally
	actors.SetConfig(conf)
	settings := actors.LoadSettings(conf)
	if err := settings.Validate(); err != nil {
		library.LogCLI(err.Error(), 0)
		os.Exit(1)
	}
	library.SetLogLevel(settings.LogLevel)

	store := state.NewStore()
	storeReady := make(chan struct{})
	go store.Start(storeReady, settings.PersistOnShutdown)
	<-storeReady

	notifier := notify.NewNostrNotifier(actors.MyWallet(), settings.Relays, settings.DoNotPublish)
	attempts, backoff := settings.LockRetryAttempts, settings.LockRetryBackoff
	ledger := vesting.NewLedger(store, notifier, attempts, backoff)

	if settings.SeedFile != "" {
		f, err := seed.Load(settings.SeedFile)
		if err != nil {
			library.LogCLI(err.Error(), 1)
		} else if _, err := f.Apply(context.Background(), store, ledger, time.Now()); err != nil {
			library.LogCLI(err.Error(), 1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	certificates := documents.NewDispatcher(documents.LogGenerator{}, settings.CertificateWorkers)
	certificates.Start(ctx)

	sw := sweeper.New(store, ledger,
		tender.NewClearing(store, attempts, backoff),
		buybacks.NewGenerator(store, attempts, backoff),
		captable.NewMutator(store, certificates, notifier, attempts, backoff),
		settings)
	sweeperReady := make(chan struct{})
	go sw.Start(sweeperReady)
	<-sweeperReady

	interrupt := make(chan struct{})
	go cliListener(interrupt, store, sw)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-interrupt:
	case s := <-signals:
		library.LogCLI(fmt.Sprintf("received %s", s), 4)
	}
	cancel()
	certificates.Wait()
	actors.Shutdown()
	fmt.Println("equitydesk stopped")
}
