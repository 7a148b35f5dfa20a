package source

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// SharedRegions collapses concurrent fetches of the same region into one
// download. Callers receive the same read-only path.
type SharedRegions struct {
	next  RegionFetcher
	group singleflight.Group
	// Timeout bounds a shared download. The download outlives the
	// cancellation of any single waiting caller.
	Timeout time.Duration
}

// NewSharedRegions wraps next.
func NewSharedRegions(next RegionFetcher, timeout time.Duration) *SharedRegions {
	return &SharedRegions{next: next, Timeout: timeout}
}

// FetchRegion fetches region once for all concurrent callers.
func (s *SharedRegions) FetchRegion(ctx context.Context, region string) (string, error) {
	ch := s.group.DoChan(region, func() (any, error) {
		dctx := context.WithoutCancel(ctx)
		if s.Timeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(dctx, s.Timeout)
			defer cancel()
		}
		return s.next.FetchRegion(dctx, region)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
