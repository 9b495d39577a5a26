package persist

import (
	"fmt"
	"time"
)

// ReactionMap maps an emoji to the ordered set of user IDs that reacted with it.
type ReactionMap map[string][]DBID

// Comment is the normalized comment entity. A comment with an empty ParentID is
// top-level; otherwise it is a reply to exactly one parent.
type Comment struct {
	ID         DBID        `json:"id"`
	PostID     DBID        `json:"post_id"`
	ParentID   DBID        `json:"parent_comment_id,omitempty"`
	AuthorID   DBID        `json:"author_id"`
	Content    string      `json:"content"`
	GifURL     string      `json:"gif_url,omitempty"`
	Reactions  ReactionMap `json:"reactions"`
	ReplyCount int         `json:"reply_count"`
	Deleted    bool        `json:"is_deleted"`
	Edited     bool        `json:"is_edited"`
	CreatedAt  time.Time   `json:"created_at"`
}

// IsReply returns true if the comment is a reply to another comment.
func (c Comment) IsReply() bool {
	return c.ParentID != ""
}

// Clone returns a deep copy of the comment, including its reaction map. Snapshots
// taken for optimistic rollback must not alias the live entity.
func (c Comment) Clone() Comment {
	copied := c
	copied.Reactions = c.Reactions.Clone()
	return copied
}

// Clone returns a deep copy of the reaction map.
func (r ReactionMap) Clone() ReactionMap {
	if r == nil {
		return nil
	}
	copied := make(ReactionMap, len(r))
	for emoji, users := range r {
		copied[emoji] = append([]DBID(nil), users...)
	}
	return copied
}

// Has returns true if the user has reacted with the given emoji.
func (r ReactionMap) Has(emoji string, userID DBID) bool {
	for _, id := range r[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}

// ReactionFor returns the emoji the user is currently reacted with, if any.
func (r ReactionMap) ReactionFor(userID DBID) (string, bool) {
	for emoji, users := range r {
		for _, id := range users {
			if id == userID {
				return emoji, true
			}
		}
	}
	return "", false
}

// Toggle returns a new reaction map with the user's reaction toggled to the given
// emoji. A user holds at most one reaction per comment: the user is removed from
// every other bucket, then added to the target bucket unless already present there,
// in which case the reaction is removed entirely. Empty buckets are dropped.
func (r ReactionMap) Toggle(emoji string, userID DBID) ReactionMap {
	hadTarget := r.Has(emoji, userID)

	next := make(ReactionMap, len(r))
	for e, users := range r {
		kept := make([]DBID, 0, len(users))
		for _, id := range users {
			if id != userID {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			next[e] = kept
		}
	}

	if !hadTarget {
		next[emoji] = append(next[emoji], userID)
	}

	return next
}

var errCommentNotFound ErrCommentNotFound

type ErrCommentNotFound struct{}

func (e ErrCommentNotFound) Unwrap() error { return notFoundError }
func (e ErrCommentNotFound) Error() string { return "comment not found" }

type ErrCommentNotFoundByID struct{ ID DBID }

func (e ErrCommentNotFoundByID) Unwrap() error { return errCommentNotFound }
func (e ErrCommentNotFoundByID) Error() string {
	return fmt.Sprintf("comment not found by id=%s", e.ID)
}
