package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prydesocial/go-pryde/service/persist"
	"github.com/prydesocial/go-pryde/service/store"
	"github.com/prydesocial/go-pryde/service/verify"
)

type fakeChecker struct {
	existing map[persist.DBID]bool
}

func (f *fakeChecker) CommentExists(ctx context.Context, commentID persist.DBID) (bool, error) {
	return f.existing[commentID], nil
}

func trustingVerifier() *verify.Verifier {
	return verify.New(false, false, nil)
}

func comment(id, postID, parentID persist.DBID) persist.Comment {
	return persist.Comment{ID: id, PostID: postID, ParentID: parentID, AuthorID: "author", Content: "c", CreatedAt: time.Now()}
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("added events are merged and indexed", func(t *testing.T) {
		s := store.New()
		p := New(ctx, s, trustingVerifier(), 10*time.Millisecond, 0)
		defer p.Destroy()

		p.Handle(persist.CommentAddedEvent{Comment: comment("c1", "p1", ""), PostID: "p1"})
		p.Handle(persist.CommentAddedEvent{Comment: comment("r1", "p1", "c1"), PostID: "p1"})
		p.Flush()

		comments := s.PostComments("p1")
		require.Len(t, comments, 1)
		assert.Equal(t, persist.DBID("c1"), comments[0].ID)

		replies := s.CommentReplies("c1")
		require.Len(t, replies, 1)
		assert.Equal(t, persist.DBID("r1"), replies[0].ID)
	})

	t.Run("a burst of reaction events for one comment applies only the final payload", func(t *testing.T) {
		s := store.New()
		s.UpsertMany([]persist.Comment{comment("c1", "p1", "")})
		s.IndexTopLevel("p1", "c1")

		p := New(ctx, s, trustingVerifier(), 100*time.Millisecond, 0)
		defer p.Destroy()

		for i, reactions := range []persist.ReactionMap{
			{"👍": {"u1"}},
			{"👍": {"u1", "u2"}},
			{"👍": {"u1", "u2", "u3"}},
		} {
			c := comment("c1", "p1", "")
			c.Reactions = reactions
			p.Handle(persist.CommentReactionChangedEvent{Comment: c, PostID: "p1"})
			if i < 2 {
				time.Sleep(25 * time.Millisecond)
			}
		}
		p.Flush()

		got, ok := s.Comment("c1")
		require.True(t, ok)
		assert.Equal(t, []persist.DBID{"u1", "u2", "u3"}, got.Reactions["👍"])
	})

	t.Run("deleted events remove the comment", func(t *testing.T) {
		s := store.New()
		s.UpsertMany([]persist.Comment{comment("c1", "p1", "")})
		s.IndexTopLevel("p1", "c1")

		p := New(ctx, s, trustingVerifier(), 10*time.Millisecond, 0)
		defer p.Destroy()

		p.Handle(persist.CommentDeletedEvent{ID: "c1", PostID: "p1"})
		p.Flush()

		_, ok := s.Comment("c1")
		assert.False(t, ok)
		assert.Empty(t, s.PostComments("p1"))
	})

	t.Run("an update racing a local delete does not resurrect the comment", func(t *testing.T) {
		s := store.New()
		p := New(ctx, s, trustingVerifier(), 10*time.Millisecond, 0)
		defer p.Destroy()

		p.Handle(persist.CommentUpdatedEvent{Comment: comment("gone", "p1", ""), PostID: "p1"})
		p.Flush()

		_, ok := s.Comment("gone")
		assert.False(t, ok)
	})

	t.Run("an echo of a locally merged comment is harmless", func(t *testing.T) {
		s := store.New()
		local := comment("c1", "p1", "")
		s.UpsertMany([]persist.Comment{local})
		s.IndexTopLevel("p1", "c1")

		p := New(ctx, s, trustingVerifier(), 10*time.Millisecond, 0)
		defer p.Destroy()

		p.Handle(persist.CommentAddedEvent{Comment: local, PostID: "p1"})
		p.Flush()

		comments := s.PostComments("p1")
		assert.Len(t, comments, 1)
	})

	t.Run("blocking verifier drops ghost events", func(t *testing.T) {
		s := store.New()
		checker := &fakeChecker{existing: map[persist.DBID]bool{"real": true}}
		v := verify.New(true, true, checker)

		p := New(ctx, s, v, 10*time.Millisecond, 0)
		defer p.Destroy()

		p.Handle(persist.CommentAddedEvent{Comment: comment("real", "p1", ""), PostID: "p1"})
		p.Handle(persist.CommentAddedEvent{Comment: comment("ghost", "p1", ""), PostID: "p1"})
		p.Flush()

		_, ok := s.Comment("real")
		assert.True(t, ok)
		_, ok = s.Comment("ghost")
		assert.False(t, ok)
	})

	t.Run("events flush on their own after the debounce window", func(t *testing.T) {
		s := store.New()
		p := New(ctx, s, trustingVerifier(), 20*time.Millisecond, 0)
		defer p.Destroy()

		p.Handle(persist.CommentAddedEvent{Comment: comment("c1", "p1", ""), PostID: "p1"})

		require.Eventually(t, func() bool {
			_, ok := s.Comment("c1")
			return ok
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("malformed payloads are dropped at the listener", func(t *testing.T) {
		s := store.New()
		p := New(ctx, s, trustingVerifier(), 10*time.Millisecond, 0)
		defer p.Destroy()

		transport := &fakeTransport{handlers: map[string][]func([]byte){}}
		detach := p.Attach(transport)
		defer detach()

		transport.deliver(string(persist.EventCommentAdded), []byte(`{"comment":{}}`))
		transport.deliver(string(persist.EventCommentAdded), []byte(`not json`))
		p.Flush()

		byID, _, _ := s.Snapshot()
		assert.Empty(t, byID)
	})

	t.Run("attached transport feeds the store", func(t *testing.T) {
		s := store.New()
		p := New(ctx, s, trustingVerifier(), 10*time.Millisecond, 0)
		defer p.Destroy()

		transport := &fakeTransport{handlers: map[string][]func([]byte){}}
		detach := p.Attach(transport)
		defer detach()

		transport.deliver(string(persist.EventCommentAdded), []byte(`{"comment":{"id":"c1","post_id":"p1","content":"hi"},"post_id":"p1"}`))
		p.Flush()

		got, ok := s.Comment("c1")
		require.True(t, ok)
		assert.Equal(t, "hi", got.Content)
		require.Len(t, s.PostComments("p1"), 1)
	})
}

type fakeTransport struct {
	handlers map[string][]func([]byte)
}

func (f *fakeTransport) Connected() bool      { return true }
func (f *fakeTransport) OnConnect(hook func()) { hook() }

func (f *fakeTransport) Listen(event string, handler func([]byte)) func() {
	f.handlers[event] = append(f.handlers[event], handler)
	return func() {}
}

func (f *fakeTransport) Request(ctx context.Context, event string, data interface{}) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeTransport) deliver(event string, payload []byte) {
	for _, h := range f.handlers[event] {
		h(payload)
	}
}
