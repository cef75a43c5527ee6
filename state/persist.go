package state

import (
	"encoding/json"
	"errors"
	"io"

	"equitydesk/engine/actors"
	"equitydesk/engine/library"
)

const mindName = "ledger"

// Persist writes the committed state to the flat file directory.
func (s *Store) Persist() error {
	s.mu.RLock()
	b, err := json.MarshalIndent(s.data, "", " ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return actors.Write(mindName, "current", b)
}

// Restore replaces the committed state with the last persisted snapshot, if there is one.
func (s *Store) Restore() (bool, error) {
	f, ok := actors.Open(mindName, "current")
	if !ok {
		return false, nil
	}
	defer f.Close()
	restored := newTables()
	if err := json.NewDecoder(f).Decode(&restored); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	fillTables(&restored)
	s.mu.Lock()
	s.data = restored
	s.mu.Unlock()
	return true, nil
}

func fill[T any](t *Table[T]) {
	if t.Rows == nil {
		t.Rows = make(map[string]T)
	}
	if t.Versions == nil {
		t.Versions = make(map[string]int64)
	}
}

func fillTables(t *tables) {
	fill(&t.Schedules)
	fill(&t.Grants)
	fill(&t.Events)
	fill(&t.Transactions)
	fill(&t.Holdings)
	fill(&t.Companies)
	fill(&t.OptionPools)
	fill(&t.Offers)
	fill(&t.Bids)
	fill(&t.Rounds)
	fill(&t.Buybacks)
}

// Start blocks until the terminate channel closes, then persists the store. ready is closed
// once the store has been restored from disk.
func (s *Store) Start(ready chan struct{}, persistOnShutdown bool) {
	actors.GetWaitGroup().Add(1)
	defer actors.GetWaitGroup().Done()
	if ok, err := s.Restore(); err != nil {
		library.LogCLI(err.Error(), 1)
	} else if ok {
		library.LogCLI("Ledger Mind restored from disk", 4)
	}
	close(ready)
	library.LogCLI("Ledger Mind has started", 4)
	<-actors.GetTerminateChan()
	if persistOnShutdown {
		if err := s.Persist(); err != nil {
			library.LogCLI(err.Error(), 0)
		}
	}
	library.LogCLI("Ledger Mind has shut down", 4)
}
