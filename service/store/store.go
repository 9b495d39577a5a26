package store

import (
	"sync"

	"github.com/prydesocial/go-pryde/service/persist"
	"github.com/prydesocial/go-pryde/util"
)

// Store holds the normalized comment state: the entity map plus the two ordered
// index maps. commentsByID is the exclusive source of truth for comment content;
// the index maps hold IDs only, in arrival order.
//
// Every write replaces the affected maps wholesale (copy-on-write), so a snapshot
// handed out to a reader is never mutated underneath it. Readers and writers may
// run on any goroutine; the mutex guards the swap, not the published maps.
//
// All operations are total: a missing ID is a safe no-op, never an error. Real-time
// events can race with local deletes, and the loser of that race must not fault.
type Store struct {
	mu sync.Mutex

	commentsByID    map[persist.DBID]persist.Comment
	commentsByPost  map[persist.DBID][]persist.DBID
	repliesByParent map[persist.DBID][]persist.DBID

	version uint64

	derivedMu      sync.Mutex
	derivedVersion uint64
	postComments   map[persist.DBID][]persist.Comment
	commentReplies map[persist.DBID][]persist.Comment
}

func New() *Store {
	return &Store{
		commentsByID:    map[persist.DBID]persist.Comment{},
		commentsByPost:  map[persist.DBID][]persist.DBID{},
		repliesByParent: map[persist.DBID][]persist.DBID{},
	}
}

// UpsertMany inserts or replaces the given comments by ID. Idempotent.
func (s *Store) UpsertMany(comments []persist.Comment) {
	if len(comments) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := util.CopyMap(s.commentsByID)
	for _, c := range comments {
		if c.ID == "" {
			continue
		}
		next[c.ID] = c
	}
	s.commentsByID = next
	s.version++
}

// IndexTopLevel appends the given IDs to the post's top-level list, skipping IDs
// already present. Dedup is by ID, not entity equality. IDs with no entity in
// commentsByID are skipped so the index can never dangle.
func (s *Store) IndexTopLevel(postID persist.DBID, commentIDs ...persist.DBID) {
	s.index(&s.commentsByPost, postID, commentIDs)
}

// IndexReplies appends the given IDs to the parent's reply list with the same
// dedup rule as IndexTopLevel.
func (s *Store) IndexReplies(parentID persist.DBID, commentIDs ...persist.DBID) {
	s.index(&s.repliesByParent, parentID, commentIDs)
}

func (s *Store) index(target *map[persist.DBID][]persist.DBID, key persist.DBID, commentIDs []persist.DBID) {
	if key == "" || len(commentIDs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := (*target)[key]
	appended := existing
	changed := false
	for _, id := range commentIDs {
		if id == "" || util.Contains(appended, id) {
			continue
		}
		if _, ok := s.commentsByID[id]; !ok {
			continue
		}
		if !changed {
			appended = append([]persist.DBID(nil), existing...)
			changed = true
		}
		appended = append(appended, id)
	}
	if !changed {
		return
	}

	next := util.CopyMap(*target)
	next[key] = appended
	*target = next
	s.version++
}

// Remove deletes the comment from the entity map and from whichever index list
// contains it. If the comment was a parent, its entire reply index entry is
// dropped as well; the reply entities themselves stay in commentsByID, reachable
// by ID only. Removing an absent ID is a no-op.
func (s *Store) Remove(commentID persist.DBID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commentsByID[commentID]
	if !ok {
		return
	}

	byID := util.CopyMap(s.commentsByID)
	delete(byID, commentID)
	s.commentsByID = byID

	if c.IsReply() {
		if ids, ok := s.repliesByParent[c.ParentID]; ok && util.Contains(ids, commentID) {
			byParent := util.CopyMap(s.repliesByParent)
			byParent[c.ParentID] = util.Remove(ids, commentID)
			s.repliesByParent = byParent
		}
	} else {
		if ids, ok := s.commentsByPost[c.PostID]; ok && util.Contains(ids, commentID) {
			byPost := util.CopyMap(s.commentsByPost)
			byPost[c.PostID] = util.Remove(ids, commentID)
			s.commentsByPost = byPost
		}
	}

	if _, ok := s.repliesByParent[commentID]; ok {
		byParent := util.CopyMap(s.repliesByParent)
		delete(byParent, commentID)
		s.repliesByParent = byParent
	}

	s.version++
}

// CommentPatch is a partial update; nil fields are left untouched.
type CommentPatch struct {
	Content    *string
	GifURL     *string
	Reactions  *persist.ReactionMap
	ReplyCount *int
	Edited     *bool
	Deleted    *bool
}

// Patch merges the partial update into the existing entity. Patching an absent ID
// is a no-op so a patch can never resurrect a deleted comment.
func (s *Store) Patch(commentID persist.DBID, patch CommentPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commentsByID[commentID]
	if !ok {
		return
	}

	if patch.Content != nil {
		c.Content = *patch.Content
	}
	if patch.GifURL != nil {
		c.GifURL = *patch.GifURL
	}
	if patch.Reactions != nil {
		c.Reactions = patch.Reactions.Clone()
	}
	if patch.ReplyCount != nil {
		c.ReplyCount = *patch.ReplyCount
	}
	if patch.Edited != nil {
		c.Edited = *patch.Edited
	}
	if patch.Deleted != nil {
		c.Deleted = *patch.Deleted
	}

	next := util.CopyMap(s.commentsByID)
	next[commentID] = c
	s.commentsByID = next
	s.version++
}

// AdjustReplyCount adds delta to the comment's reply count, clamping at zero.
// No-op for absent IDs.
func (s *Store) AdjustReplyCount(commentID persist.DBID, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commentsByID[commentID]
	if !ok {
		return
	}

	c.ReplyCount += delta
	if c.ReplyCount < 0 {
		c.ReplyCount = 0
	}

	next := util.CopyMap(s.commentsByID)
	next[commentID] = c
	s.commentsByID = next
	s.version++
}

// Comment returns the entity for the given ID.
func (s *Store) Comment(commentID persist.DBID) (persist.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commentsByID[commentID]
	return c, ok
}

// Snapshot returns the current normalized maps. The returned maps are the live
// published versions and must not be mutated by the caller; every store write
// swaps in fresh maps instead of touching these.
func (s *Store) Snapshot() (map[persist.DBID]persist.Comment, map[persist.DBID][]persist.DBID, map[persist.DBID][]persist.DBID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commentsByID, s.commentsByPost, s.repliesByParent
}

// PostComments returns the denormalized top-level comments for a post, in index
// order. The view is a pure derivation of the normalized maps, memoized until the
// next write.
func (s *Store) PostComments(postID persist.DBID) []persist.Comment {
	s.refreshDerived()
	s.derivedMu.Lock()
	defer s.derivedMu.Unlock()
	return s.postComments[postID]
}

// CommentReplies returns the denormalized replies for a parent comment, in index
// order.
func (s *Store) CommentReplies(parentID persist.DBID) []persist.Comment {
	s.refreshDerived()
	s.derivedMu.Lock()
	defer s.derivedMu.Unlock()
	return s.commentReplies[parentID]
}

func (s *Store) refreshDerived() {
	s.mu.Lock()
	version := s.version
	byID := s.commentsByID
	byPost := s.commentsByPost
	byParent := s.repliesByParent
	s.mu.Unlock()

	s.derivedMu.Lock()
	defer s.derivedMu.Unlock()

	if s.derivedVersion == version && s.postComments != nil {
		return
	}

	s.postComments = deriveView(byID, byPost)
	s.commentReplies = deriveView(byID, byParent)
	s.derivedVersion = version
}

func deriveView(byID map[persist.DBID]persist.Comment, index map[persist.DBID][]persist.DBID) map[persist.DBID][]persist.Comment {
	view := make(map[persist.DBID][]persist.Comment, len(index))
	for key, ids := range index {
		comments := make([]persist.Comment, 0, len(ids))
		for _, id := range ids {
			if c, ok := byID[id]; ok {
				comments = append(comments, c)
			}
		}
		view[key] = comments
	}
	return view
}
