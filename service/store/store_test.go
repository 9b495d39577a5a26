package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prydesocial/go-pryde/service/persist"
)

func newComment(id, postID, parentID persist.DBID) persist.Comment {
	return persist.Comment{
		ID:        id,
		PostID:    postID,
		ParentID:  parentID,
		AuthorID:  "author",
		Content:   "content of " + id.String(),
		CreatedAt: time.Now(),
	}
}

func TestStore(t *testing.T) {
	t.Run("upsert then index makes comments reachable", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})
		s.IndexTopLevel("p1", "c1")

		comments := s.PostComments("p1")
		require.Len(t, comments, 1)
		assert.Equal(t, persist.DBID("c1"), comments[0].ID)

		got, ok := s.Comment("c1")
		require.True(t, ok)
		assert.Equal(t, "content of c1", got.Content)
	})

	t.Run("indexing is idempotent", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})
		s.IndexTopLevel("p1", "c1")
		s.IndexTopLevel("p1", "c1")
		s.IndexTopLevel("p1", "c1", "c1")

		_, byPost, _ := s.Snapshot()
		assert.Equal(t, []persist.DBID{"c1"}, byPost["p1"])
	})

	t.Run("indexing an unknown id is skipped", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})
		s.IndexTopLevel("p1", "c1", "ghost")

		_, byPost, _ := s.Snapshot()
		assert.Equal(t, []persist.DBID{"c1"}, byPost["p1"])
	})

	t.Run("referential integrity holds under mixed operations", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{
			newComment("c1", "p1", ""),
			newComment("c2", "p1", ""),
			newComment("r1", "p1", "c1"),
			newComment("r2", "p1", "c1"),
		})
		s.IndexTopLevel("p1", "c1", "c2")
		s.IndexReplies("c1", "r1", "r2")
		s.Remove("c2")
		s.Remove("r1")
		s.IndexReplies("c1", "missing")

		byID, byPost, byParent := s.Snapshot()
		for _, ids := range byPost {
			for _, id := range ids {
				_, ok := byID[id]
				assert.True(t, ok, "dangling id %s in commentsByPost", id)
			}
		}
		for _, ids := range byParent {
			for _, id := range ids {
				_, ok := byID[id]
				assert.True(t, ok, "dangling id %s in repliesByParent", id)
			}
		}
	})

	t.Run("remove deletes entity and index entry", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", ""), newComment("c2", "p1", "")})
		s.IndexTopLevel("p1", "c1", "c2")

		s.Remove("c1")

		_, ok := s.Comment("c1")
		assert.False(t, ok)
		_, byPost, _ := s.Snapshot()
		assert.Equal(t, []persist.DBID{"c2"}, byPost["p1"])
	})

	t.Run("removing an absent id is a no-op", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})
		s.IndexTopLevel("p1", "c1")

		s.Remove("nope")

		_, ok := s.Comment("c1")
		assert.True(t, ok)
	})

	t.Run("removing a parent drops its reply index but keeps reply entities", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{
			newComment("c1", "p1", ""),
			newComment("r1", "p1", "c1"),
			newComment("r2", "p1", "c1"),
		})
		s.IndexTopLevel("p1", "c1")
		s.IndexReplies("c1", "r1", "r2")

		s.Remove("c1")

		_, _, byParent := s.Snapshot()
		_, ok := byParent["c1"]
		assert.False(t, ok)

		// reply entities stay addressable by ID even though the traversal path is gone
		_, ok = s.Comment("r1")
		assert.True(t, ok)
		_, ok = s.Comment("r2")
		assert.True(t, ok)
		assert.Empty(t, s.CommentReplies("c1"))
	})

	t.Run("removing a reply takes it out of the parent's list", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{
			newComment("c1", "p1", ""),
			newComment("r1", "p1", "c1"),
			newComment("r2", "p1", "c1"),
		})
		s.IndexTopLevel("p1", "c1")
		s.IndexReplies("c1", "r1", "r2")

		s.Remove("r1")

		_, _, byParent := s.Snapshot()
		assert.Equal(t, []persist.DBID{"r2"}, byParent["c1"])
	})

	t.Run("patch merges fields", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})

		content := "edited"
		edited := true
		s.Patch("c1", CommentPatch{Content: &content, Edited: &edited})

		got, ok := s.Comment("c1")
		require.True(t, ok)
		assert.Equal(t, "edited", got.Content)
		assert.True(t, got.Edited)
		assert.Equal(t, persist.DBID("author"), got.AuthorID)
	})

	t.Run("patch does not resurrect a deleted comment", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})
		s.Remove("c1")

		content := "back from the dead"
		s.Patch("c1", CommentPatch{Content: &content})

		_, ok := s.Comment("c1")
		assert.False(t, ok)
	})

	t.Run("upsert replaces the full entity", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})

		replacement := newComment("c1", "p1", "")
		replacement.Content = "server truth"
		replacement.Reactions = persist.ReactionMap{"👍": {"u1"}}
		s.UpsertMany([]persist.Comment{replacement})

		got, _ := s.Comment("c1")
		assert.Equal(t, "server truth", got.Content)
		assert.Equal(t, []persist.DBID{"u1"}, got.Reactions["👍"])
	})

	t.Run("derived views track writes", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{newComment("c1", "p1", "")})
		s.IndexTopLevel("p1", "c1")

		require.Len(t, s.PostComments("p1"), 1)

		content := "refreshed"
		s.Patch("c1", CommentPatch{Content: &content})
		assert.Equal(t, "refreshed", s.PostComments("p1")[0].Content)

		s.Remove("c1")
		assert.Empty(t, s.PostComments("p1"))
	})

	t.Run("derived views keep index order", func(t *testing.T) {
		s := New()
		s.UpsertMany([]persist.Comment{
			newComment("c1", "p1", ""),
			newComment("c2", "p1", ""),
			newComment("c3", "p1", ""),
		})
		s.IndexTopLevel("p1", "c1")
		s.IndexTopLevel("p1", "c2", "c3")

		comments := s.PostComments("p1")
		require.Len(t, comments, 3)
		assert.Equal(t, persist.DBID("c1"), comments[0].ID)
		assert.Equal(t, persist.DBID("c2"), comments[1].ID)
		assert.Equal(t, persist.DBID("c3"), comments[2].ID)
	})

	t.Run("adjust reply count clamps at zero", func(t *testing.T) {
		s := New()
		c := newComment("c1", "p1", "")
		c.ReplyCount = 1
		s.UpsertMany([]persist.Comment{c})

		s.AdjustReplyCount("c1", -5)
		got, _ := s.Comment("c1")
		assert.Equal(t, 0, got.ReplyCount)

		s.AdjustReplyCount("c1", 2)
		got, _ = s.Comment("c1")
		assert.Equal(t, 2, got.ReplyCount)
	})
}
