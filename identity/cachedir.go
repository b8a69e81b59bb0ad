package identity

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheDirectory wraps another Directory with an expirable LRU. Lookup
// errors are cached too, with a shorter TTL, so a flapping identity
// provider doesn't get hammered by retries.
type CacheDirectory struct {
	Inner  Directory
	ErrTTL time.Duration

	cache *expirable.LRU[string, profileEntry]
}

type profileEntry struct {
	Updated time.Time
	Profile *Profile
	Err     error
}

var _ Directory = (*CacheDirectory)(nil)

// Capacity of zero means unlimited size. Similarly, ttl of zero means
// unlimited duration.
func NewCacheDirectory(inner Directory, capacity int, hitTTL, errTTL time.Duration) *CacheDirectory {
	return &CacheDirectory{
		Inner:  inner,
		ErrTTL: errTTL,
		cache:  expirable.NewLRU[string, profileEntry](capacity, nil, hitTTL),
	}
}

func (d *CacheDirectory) isStale(e *profileEntry) bool {
	return e.Err != nil && time.Since(e.Updated) > d.ErrTTL
}

func (d *CacheDirectory) LookupSubject(ctx context.Context, subjectID string) (*Profile, error) {
	entry, ok := d.cache.Get(subjectID)
	if ok && !d.isStale(&entry) {
		return entry.Profile, entry.Err
	}

	prof, err := d.Inner.LookupSubject(ctx, subjectID)
	entry = profileEntry{
		Updated: time.Now(),
		Profile: prof,
		Err:     err,
	}
	d.cache.Add(subjectID, entry)
	return prof, err
}

// Purge drops the cached entry for a subject.
func (d *CacheDirectory) Purge(subjectID string) {
	d.cache.Remove(subjectID)
}
