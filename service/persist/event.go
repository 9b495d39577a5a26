package persist

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a real-time comment event on the wire.
type EventType string

const (
	EventCommentAdded           EventType = "comment-added"
	EventCommentUpdated         EventType = "comment-updated"
	EventCommentDeleted         EventType = "comment-deleted"
	EventCommentReactionChanged EventType = "comment-reaction-added"
)

// EventTypes lists every known comment event, in no particular order.
var EventTypes = []EventType{
	EventCommentAdded,
	EventCommentUpdated,
	EventCommentDeleted,
	EventCommentReactionChanged,
}

// CommentEvent is the closed union of real-time comment events. Payloads that do
// not match one of the known shapes are rejected at decode time rather than
// destructured optimistically.
type CommentEvent interface {
	Type() EventType
	CommentID() DBID
	Post() DBID
}

// CommentAddedEvent carries a newly created comment.
type CommentAddedEvent struct {
	Comment Comment `json:"comment"`
	PostID  DBID    `json:"post_id"`
}

func (e CommentAddedEvent) Type() EventType { return EventCommentAdded }
func (e CommentAddedEvent) CommentID() DBID { return e.Comment.ID }
func (e CommentAddedEvent) Post() DBID      { return e.PostID }

// CommentUpdatedEvent carries the full updated comment.
type CommentUpdatedEvent struct {
	Comment Comment `json:"comment"`
	PostID  DBID    `json:"post_id"`
}

func (e CommentUpdatedEvent) Type() EventType { return EventCommentUpdated }
func (e CommentUpdatedEvent) CommentID() DBID { return e.Comment.ID }
func (e CommentUpdatedEvent) Post() DBID      { return e.PostID }

// CommentDeletedEvent carries only the deleted comment's ID.
type CommentDeletedEvent struct {
	ID     DBID `json:"comment_id"`
	PostID DBID `json:"post_id"`
}

func (e CommentDeletedEvent) Type() EventType { return EventCommentDeleted }
func (e CommentDeletedEvent) CommentID() DBID { return e.ID }
func (e CommentDeletedEvent) Post() DBID      { return e.PostID }

// CommentReactionChangedEvent carries the comment with its current reaction state.
type CommentReactionChangedEvent struct {
	Comment Comment `json:"comment"`
	PostID  DBID    `json:"post_id"`
}

func (e CommentReactionChangedEvent) Type() EventType { return EventCommentReactionChanged }
func (e CommentReactionChangedEvent) CommentID() DBID { return e.Comment.ID }
func (e CommentReactionChangedEvent) Post() DBID      { return e.PostID }

type ErrUnknownEventType struct{ Type string }

func (e ErrUnknownEventType) Error() string {
	return fmt.Sprintf("unknown comment event type: %s", e.Type)
}

type ErrMalformedEvent struct {
	Type   EventType
	Reason string
}

func (e ErrMalformedEvent) Error() string {
	return fmt.Sprintf("malformed %s event: %s", e.Type, e.Reason)
}

type eventEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEvent decodes a raw `{event, payload}` wire message into one of the known
// comment event variants.
func DecodeEvent(message []byte) (CommentEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		return nil, err
	}
	return DecodeEventPayload(EventType(envelope.Event), envelope.Payload)
}

// DecodeEventPayload decodes the payload of an already-routed event. Unknown
// event names and payloads missing their required IDs return a typed error.
func DecodeEventPayload(eventType EventType, payload []byte) (CommentEvent, error) {
	switch eventType {
	case EventCommentAdded:
		var ev CommentAddedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.Comment.ID == "" {
			return nil, ErrMalformedEvent{Type: eventType, Reason: "missing comment id"}
		}
		return ev, nil
	case EventCommentUpdated:
		var ev CommentUpdatedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.Comment.ID == "" {
			return nil, ErrMalformedEvent{Type: eventType, Reason: "missing comment id"}
		}
		return ev, nil
	case EventCommentDeleted:
		var ev CommentDeletedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, ErrMalformedEvent{Type: eventType, Reason: "missing comment id"}
		}
		return ev, nil
	case EventCommentReactionChanged:
		var ev CommentReactionChangedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.Comment.ID == "" {
			return nil, ErrMalformedEvent{Type: eventType, Reason: "missing comment id"}
		}
		return ev, nil
	default:
		return nil, ErrUnknownEventType{Type: string(eventType)}
	}
}
