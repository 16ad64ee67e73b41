package snapshot

import "time"

// NewStoreForTest constructs a store with an injected clock.
func NewStoreForTest(backupRoot string, now func() time.Time, ignore ...string) *Store {
	s := NewStore(backupRoot, ignore...)
	s.now = now
	return s
}
