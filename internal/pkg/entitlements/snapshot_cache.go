package entitlements

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/planboard/planboard/internal/pkg/cache"
)

const snapshotTTL = 15 * time.Minute

func snapshotKey(email string) string {
	return "entitlement:" + strings.ToLower(strings.TrimSpace(email))
}

// CacheSnapshot stores a customer's snapshot with a short TTL. A nil
// snapshot is cached too, so repeated gate checks for non-subscribers do
// not hit the store.
func CacheSnapshot(email string, s *Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Errorf("failed to marshal entitlement snapshot for %s: %v", email, err)
		return
	}
	if err := cache.Set(snapshotKey(email), string(data), snapshotTTL); err != nil {
		log.Warnf("failed to cache entitlement snapshot for %s: %v", email, err)
	}
}

// CachedSnapshot returns the cached snapshot and whether the cache held an
// entry. Cache failures count as misses; the caller falls back to the store.
func CachedSnapshot(email string) (*Snapshot, bool) {
	raw, err := cache.Get(snapshotKey(email))
	if err != nil {
		if !cache.IsNotFound(err) {
			log.Warnf("entitlement snapshot lookup failed for %s: %v", email, err)
		}
		return nil, false
	}

	var s *Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		log.Warnf("corrupt entitlement snapshot for %s: %v", email, err)
		return nil, false
	}
	return s, true
}

// InvalidateSnapshot drops a customer's cached snapshot so the next gate
// check re-derives from the store.
func InvalidateSnapshot(email string) {
	if err := cache.Delete(snapshotKey(email)); err != nil {
		log.Warnf("failed to invalidate entitlement snapshot for %s: %v", email, err)
	}
}
