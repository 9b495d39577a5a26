package realtime

import (
	"context"
	"time"

	"github.com/prydesocial/go-pryde/service/batch"
	"github.com/prydesocial/go-pryde/service/logger"
	"github.com/prydesocial/go-pryde/service/persist"
	"github.com/prydesocial/go-pryde/service/socket"
	"github.com/prydesocial/go-pryde/service/store"
	"github.com/prydesocial/go-pryde/service/verify"
)

// Pipeline routes incoming real-time comment events into the entity store.
// Added and deleted events flow through an ordered list batcher so their relative
// order survives coalescing; updated and reaction events flow through a keyed
// latest-wins batcher, since only their final state matters. Each flush runs the
// consistency verifier before merging.
//
// The store merges are idempotent and commutative with local optimistic writes:
// a locally-submitted comment's echo event re-upserts the same entity and the
// index dedup makes the double-apply harmless.
type Pipeline struct {
	ctx      context.Context
	store    *store.Store
	verifier *verify.Verifier

	ordered *batch.ListBatcher[persist.CommentEvent]
	keyed   *batch.KeyedBatcher[persist.DBID, persist.CommentEvent]

	handlers map[persist.EventType]func(persist.CommentEvent)
}

// New creates a pipeline flushing after delay of event quiet time. maxDelay of 0
// leaves the flush deferral unbounded, matching the pure-debounce behavior.
func New(ctx context.Context, s *store.Store, verifier *verify.Verifier, delay, maxDelay time.Duration) *Pipeline {
	p := &Pipeline{ctx: ctx, store: s, verifier: verifier}

	p.ordered = batch.NewListBatcher(delay, maxDelay, p.flushOrdered)
	p.keyed = batch.NewKeyedBatcher(delay, maxDelay, keyByComment, p.flushKeyed)

	p.handlers = map[persist.EventType]func(persist.CommentEvent){
		persist.EventCommentAdded:           p.ordered.Add,
		persist.EventCommentDeleted:         p.ordered.Add,
		persist.EventCommentUpdated:         p.keyed.Add,
		persist.EventCommentReactionChanged: p.keyed.Add,
	}

	return p
}

func keyByComment(ev persist.CommentEvent) persist.DBID {
	return ev.CommentID()
}

// Handle routes one decoded event into its batcher.
func (p *Pipeline) Handle(ev persist.CommentEvent) {
	if handler, ok := p.handlers[ev.Type()]; ok {
		handler(ev)
		return
	}
	logger.For(p.ctx).Warnf("no handler registered for event type: %s", ev.Type())
}

// Attach subscribes the pipeline to every known comment event on the transport.
// The returned func removes all listeners.
func (p *Pipeline) Attach(t socket.Transport) func() {
	removes := make([]func(), 0, len(persist.EventTypes))

	for _, eventType := range persist.EventTypes {
		eventType := eventType
		remove := t.Listen(string(eventType), func(payload []byte) {
			ev, err := persist.DecodeEventPayload(eventType, payload)
			if err != nil {
				logger.For(p.ctx).Warnf("dropping %s event: %s", eventType, err)
				return
			}
			p.Handle(ev)
		})
		removes = append(removes, remove)
	}

	return func() {
		for _, remove := range removes {
			remove()
		}
	}
}

// Flush forces both batchers to deliver synchronously.
func (p *Pipeline) Flush() {
	p.ordered.Flush()
	p.keyed.Flush()
}

// Destroy cancels pending timers and drops buffered events without flushing.
func (p *Pipeline) Destroy() {
	p.ordered.Destroy()
	p.keyed.Destroy()
}

func (p *Pipeline) flushOrdered(events []persist.CommentEvent) {
	ids := make([]persist.DBID, 0, len(events))
	for _, ev := range events {
		// deletes reference entities that are gone server-side by definition
		if ev.Type() != persist.EventCommentDeleted {
			ids = append(ids, ev.CommentID())
		}
	}
	allowed := p.verifier.AllowAll(p.ctx, ids)

	for _, ev := range events {
		if ev.Type() != persist.EventCommentDeleted && !allowed[ev.CommentID()] {
			continue
		}
		p.apply(ev)
	}
}

func (p *Pipeline) flushKeyed(events map[persist.DBID]persist.CommentEvent) {
	ids := make([]persist.DBID, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	allowed := p.verifier.AllowAll(p.ctx, ids)

	for id, ev := range events {
		if !allowed[id] {
			continue
		}
		p.apply(ev)
	}
}

func (p *Pipeline) apply(ev persist.CommentEvent) {
	switch e := ev.(type) {
	case persist.CommentAddedEvent:
		p.store.UpsertMany([]persist.Comment{e.Comment})
		if e.Comment.IsReply() {
			p.store.IndexReplies(e.Comment.ParentID, e.Comment.ID)
		} else {
			p.store.IndexTopLevel(e.Post(), e.Comment.ID)
		}
	case persist.CommentUpdatedEvent:
		p.replaceIfPresent(e.Comment)
	case persist.CommentReactionChangedEvent:
		p.replaceIfPresent(e.Comment)
	case persist.CommentDeletedEvent:
		p.store.Remove(e.ID)
	}
}

// replaceIfPresent applies server truth to comments we already hold. An update
// for an absent ID is dropped so an event racing a local delete cannot
// resurrect the entity.
func (p *Pipeline) replaceIfPresent(c persist.Comment) {
	if _, ok := p.store.Comment(c.ID); !ok {
		return
	}
	p.store.UpsertMany([]persist.Comment{c})
}
