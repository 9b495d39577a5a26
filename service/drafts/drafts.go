package drafts

import (
	"context"
	"fmt"
	"time"

	"github.com/prydesocial/go-pryde/service/logger"
	"github.com/prydesocial/go-pryde/service/memstore"
	"github.com/prydesocial/go-pryde/service/persist"
	"github.com/prydesocial/go-pryde/util"
)

const defaultTTL = 7 * 24 * time.Hour

// Store persists in-progress comment edit text, keyed per comment. It is a
// best-effort side channel: write and clear failures are logged and swallowed,
// never surfaced, because draft text is not part of the authoritative entity
// model.
type Store struct {
	cache memstore.Cache
	ttl   time.Duration
}

func New(cache memstore.Cache) *Store {
	return &Store{cache: cache, ttl: defaultTTL}
}

func draftKey(commentID persist.DBID) string {
	return fmt.Sprintf("edit-comment-%s", commentID)
}

// Save stores the in-progress edit text. Called on every keystroke.
func (s *Store) Save(ctx context.Context, commentID persist.DBID, text string) {
	if err := s.cache.Set(ctx, draftKey(commentID), []byte(text), s.ttl); err != nil {
		logger.For(ctx).Warnf("failed to save draft for comment %s: %s", commentID, err)
	}
}

// Load returns the saved draft text, if any.
func (s *Store) Load(ctx context.Context, commentID persist.DBID) (string, bool) {
	bs, err := s.cache.Get(ctx, draftKey(commentID))
	if err != nil {
		if !util.ErrorAs[memstore.ErrKeyNotFound](err) {
			logger.For(ctx).Warnf("failed to load draft for comment %s: %s", commentID, err)
		}
		return "", false
	}
	return string(bs), true
}

// Clear drops the draft. Called on successful save and on cancel.
func (s *Store) Clear(ctx context.Context, commentID persist.DBID) {
	if err := s.cache.Delete(ctx, draftKey(commentID)); err != nil {
		logger.For(ctx).Warnf("failed to clear draft for comment %s: %s", commentID, err)
	}
}
