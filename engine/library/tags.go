package library

import (
	"github.com/nbd-wtf/go-nostr"
)

// TagValue returns the value of the first tag named key.
func TagValue(e nostr.Event, key string) (string, bool) {
	if t := e.Tags.GetFirst([]string{key}); t != nil && len(*t) > 1 {
		return (*t)[1], true
	}
	return "", false
}
