package verify

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"golang.org/x/sync/errgroup"

	"github.com/prydesocial/go-pryde/service/logger"
	"github.com/prydesocial/go-pryde/service/persist"
)

const (
	// estimatedComments sizes the verified-ID bloom filter.
	estimatedComments = 100_000
	falsePositiveRate = 0.000001

	maxConcurrentChecks = 4
)

// ExistenceChecker answers whether a comment is actually persisted server-side.
// The REST client satisfies this.
type ExistenceChecker interface {
	CommentExists(ctx context.Context, commentID persist.DBID) (bool, error)
}

// Verifier cross-checks entities referenced by incoming real-time events against
// the authoritative API, to catch "ghost" entities produced by races between
// creation and broadcast. It is a development-mode tool: a disabled verifier
// trusts every event, which is the production configuration.
type Verifier struct {
	enabled        bool
	blockIfMissing bool
	checker        ExistenceChecker

	mu       sync.Mutex
	verified *bloom.BloomFilter
}

// New creates a verifier. When enabled is false every Allow call returns true
// without touching the network.
func New(enabled, blockIfMissing bool, checker ExistenceChecker) *Verifier {
	return &Verifier{
		enabled:        enabled,
		blockIfMissing: blockIfMissing,
		checker:        checker,
		verified:       bloom.NewWithEstimates(estimatedComments, falsePositiveRate),
	}
}

// Allow reports whether an event referencing the given comment should be applied.
// IDs already confirmed to exist hit a bloom-filter fast path and skip the
// existence call. A missing entity logs a warning and blocks only when the
// verifier is configured to block; a failed check always allows, since an infra
// error is not evidence of a ghost.
func (v *Verifier) Allow(ctx context.Context, commentID persist.DBID) bool {
	if !v.enabled || commentID == "" {
		return true
	}

	v.mu.Lock()
	seen := v.verified.TestString(commentID.String())
	v.mu.Unlock()
	if seen {
		return true
	}

	exists, err := v.checker.CommentExists(ctx, commentID)
	if err != nil {
		logger.For(ctx).Warnf("could not verify comment %s: %s", commentID, err)
		return true
	}

	if exists {
		v.mu.Lock()
		v.verified.AddString(commentID.String())
		v.mu.Unlock()
		return true
	}

	logger.For(ctx).Warnf("ghost entity: comment %s referenced by a real-time event does not exist server-side", commentID)
	return !v.blockIfMissing
}

// AllowAll checks a batch of IDs concurrently and returns the set of allowed IDs.
func (v *Verifier) AllowAll(ctx context.Context, commentIDs []persist.DBID) map[persist.DBID]bool {
	allowed := make(map[persist.DBID]bool, len(commentIDs))

	if !v.enabled {
		for _, id := range commentIDs {
			allowed[id] = true
		}
		return allowed
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentChecks)

	for _, id := range commentIDs {
		id := id
		eg.Go(func() error {
			ok := v.Allow(egCtx, id)
			mu.Lock()
			allowed[id] = ok
			mu.Unlock()
			return nil
		})
	}

	eg.Wait()
	return allowed
}
