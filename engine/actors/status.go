package actors

import (
	"sync"

	"github.com/sasha-s/go-deadlock"
)

var terminateChan = make(chan struct{})
var terminateOnce sync.Once
var waitGroup = &deadlock.WaitGroup{}

func SetTerminateChan(term chan struct{}) {
	terminateChan = term
}

func GetTerminateChan() chan struct{} {
	return terminateChan
}

// GetWaitGroup is the group long-running workers register with so shutdown can wait for them.
func GetWaitGroup() *deadlock.WaitGroup {
	return waitGroup
}

// Shutdown closes the terminate channel once and waits for registered workers.
func Shutdown() {
	terminateOnce.Do(func() {
		close(terminateChan)
	})
	waitGroup.Wait()
}
