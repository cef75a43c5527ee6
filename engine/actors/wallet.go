package actors

import (
	"encoding/json"
	"fmt"
	"os"

	"equitydesk/engine/library"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
)

var currentWallet library.Wallet
var currentWalletMutex = &deadlock.Mutex{}

// MyWallet returns the key notification events are signed with, creating one if there isn't one already
func MyWallet() library.Wallet {
	currentWalletMutex.Lock()
	defer currentWalletMutex.Unlock()
	if len(currentWallet.PrivateKey) == 0 {
		if w, ok := getWalletFromDisk(); ok {
			currentWallet = w
		} else {
			library.LogCLI("Generating a new signing key for notifications", 4)
			w, err := NewWallet()
			if err != nil {
				library.LogCLI(err.Error(), 0)
				return library.Wallet{}
			}
			currentWallet = w
			if err := persistCurrentWallet(); err != nil {
				library.LogCLI(err.Error(), 1)
			}
		}
	}
	return currentWallet
}

// NewWallet generates a fresh keypair.
func NewWallet() (library.Wallet, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return library.Wallet{}, fmt.Errorf("could not derive public key: %w", err)
	}
	return library.Wallet{PrivateKey: sk, Account: pk}, nil
}

func walletPath() string {
	return MakeOrGetConfig().GetString("rootDir") + "wallet.dat"
}

func persistCurrentWallet() error {
	b, err := json.Marshal(currentWallet)
	if err != nil {
		return err
	}
	return os.WriteFile(walletPath(), b, 0600)
}

func getWalletFromDisk() (w library.Wallet, ok bool) {
	file, err := os.ReadFile(walletPath())
	if err != nil {
		library.LogCLI(fmt.Sprintf("Error getting wallet file: %s", err.Error()), 3)
		return library.Wallet{}, false
	}
	err = json.Unmarshal(file, &w)
	if err != nil {
		library.LogCLI(fmt.Sprintf("Error parsing wallet file: %s", err.Error()), 3)
		return library.Wallet{}, false
	}
	return w, true
}
