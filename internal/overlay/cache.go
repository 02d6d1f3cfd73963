package overlay

import "fmt"

// CacheMode selects how aggressively a read-only open prefetches a
// Committed file's content out of the Store, per the `cache=` mount
// option. It has no effect on writing opens: a write always materializes
// a full spill file regardless of mode.
type CacheMode uint8

const (
	// CacheDeep prefetches a LargeBlob's entire fragment set on first
	// read-only open, since most Ori working sets are read close to
	// sequentially. It is the default.
	CacheDeep CacheMode = iota
	// CacheShallow fetches only the fragment(s) covering each read's
	// byte range, never the whole LargeBlob.
	CacheShallow
	// CacheNone additionally refuses to reuse a materialized spill copy
	// across opens of the same still-Committed file: every read re-opens
	// the Store stream.
	CacheNone
)

// ParseCacheMode parses the `cache=` mount option's value.
func ParseCacheMode(s string) (CacheMode, error) {
	switch s {
	case "", "deep":
		return CacheDeep, nil
	case "shallow":
		return CacheShallow, nil
	case "none":
		return CacheNone, nil
	default:
		return 0, fmt.Errorf("overlay: unknown cache mode %q", s)
	}
}
