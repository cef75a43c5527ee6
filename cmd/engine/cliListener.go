package main

import (
	"context"
	"fmt"

	"equitydesk/engine/actors"
	"equitydesk/engine/library"
	"equitydesk/messaging/sweeper"
	"equitydesk/state"
	"github.com/eiannone/keyboard"
)

// cliListener is a cheap and nasty way to poke at a running engine. It listens for keypresses and executes commands.
func cliListener(interrupt chan struct{}, store *state.Store, sw *sweeper.Sweeper) {
	fmt.Println("VIEW CURRENT STATE:\ng: equity grants\no: tender offers\nr: buyback rounds\nv: run a vesting sweep now\nt: settle closed tender offers now\nw: current wallet\nc: engine config\nq: to quit\nSee cliListener.go for more")
	for {
		r, k, err := keyboard.GetSingleKey()
		if err != nil {
			fmt.Println(err)
			return
		}
		str := string(r)
		switch str {
		default:
			if k == keyboard.KeyEnter {
				fmt.Println("\n-----------------------------------")
				break
			}
			if r == 0 {
				break
			}
			fmt.Println("Key " + str + " is not bound to any command. See main.cliListener for more details.")
		case "g":
			_ = store.View(func(tx *state.Tx) error {
				for _, g := range tx.Grants(func(state.EquityGrant) bool { return true }) {
					fmt.Printf("\nGrant: %s Investor: %s Trigger: %s\nShares: %d Vested: %d Unvested: %d Forfeited: %d Exercise: $%s\n",
						g.ID, g.InvestorID, g.VestingTrigger, g.NumberOfShares, g.VestedShares, g.UnvestedShares, g.ForfeitedShares, g.ExercisePriceUsd.StringFixed(2))
					for _, e := range tx.EventsForGrant(g.ID) {
						fmt.Printf("  %s %6d %s %s\n", e.VestingDate.Format("2006-01-02"), e.VestedShares, e.Status, e.CancellationReason)
					}
				}
				return nil
			})
		case "o":
			_ = store.View(func(tx *state.Tx) error {
				for _, o := range tx.Offers(func(state.TenderOffer) bool { return true }) {
					price := "none"
					if o.AcceptedPriceCents != nil {
						price = "$" + library.CentsToUsd(*o.AcceptedPriceCents).StringFixed(2)
					}
					fmt.Printf("\nOffer: %s Company: %s Ends: %s\nCap: %d shares / $%s Accepted price: %s %s\n",
						o.ID, o.CompanyID, o.EndsAt.Format("2006-01-02 15:04"), o.NumberOfShares, library.CentsToUsd(o.TotalAmountInCents).StringFixed(2), price, o.SettlementError)
					for _, b := range tx.BidsForOffer(o.ID) {
						fmt.Printf("  %s %s %d @ %d accepted %d\n", b.CompanyInvestorID, b.ShareClass, b.NumberOfShares, b.SharePriceCents, b.AcceptedShares)
					}
				}
				return nil
			})
		case "r":
			_ = store.View(func(tx *state.Tx) error {
				for _, round := range tx.Rounds(func(state.EquityBuybackRound) bool { return true }) {
					fmt.Printf("\nRound: %s Offer: %s Status: %s\nShares: %d Holders: %d Amount: %d cents\n",
						round.ID, round.TenderOfferID, round.Status, round.NumberOfShares, round.NumberOfShareholders, round.TotalAmountCents)
					for _, b := range tx.BuybacksForRound(round.ID) {
						fmt.Printf("  %s %s %d shares, %d cents\n", b.InvestorID, b.Security, b.NumberOfShares, b.TotalAmountCents)
					}
				}
				return nil
			})
		case "v":
			res, err := sw.SweepDueVesting(context.Background())
			fmt.Printf("processed %d cancelled %d (%v), %d deferred\n", res.Processed, res.Cancelled, err, sw.Deferred())
		case "t":
			fmt.Printf("settled %d tender offers\n", sw.SettleClosedOffers(context.Background()))
		case "w":
			fmt.Printf("Current Wallet: \n%s\n", actors.MyWallet().Account)
		case "c":
			fmt.Println("CURRENT CONFIG")
			for k, v := range actors.MakeOrGetConfig().AllSettings() {
				fmt.Printf("\nKey: %s; Value: %v\n", k, v)
			}
		case "q":
			close(interrupt)
			return
		}
	}
}
