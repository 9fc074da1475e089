package port

import "context"

// ItemLocker serializes writers on one delivery item. TryLock never waits:
// ok is false when another writer holds the key.
type ItemLocker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}
