package notify

import (
	"context"
	"fmt"
	"time"

	"equitydesk/engine/library"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
)

const publishTimeout = 10 * time.Second

func PublishToRelays(ctx context.Context, events []nostr.Event, relays []string) {
	var wg = &deadlock.WaitGroup{}
	for _, relay := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			conn, err := nostr.RelayConnect(ctx, url)
			if err != nil {
				library.LogCLI(fmt.Sprintf("could not connect to relay %s: %s", url, err), 2)
				return
			}
			defer conn.Close()
			for _, event := range events {
				if _, err := conn.Publish(ctx, event); err != nil {
					library.LogCLI(fmt.Sprintf("could not publish %s to relay %s: %s", event.ID, url, err), 2)
				}
			}
		}(relay)
	}
	wg.Wait()
}
