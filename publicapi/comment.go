package publicapi

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/prydesocial/go-pryde/service/drafts"
	"github.com/prydesocial/go-pryde/service/logger"
	"github.com/prydesocial/go-pryde/service/persist"
	sentryutil "github.com/prydesocial/go-pryde/service/sentry"
	"github.com/prydesocial/go-pryde/service/store"
	"github.com/prydesocial/go-pryde/validate"
)

var ErrOnlyRemoveOwnComment = errors.New("only the author who created the comment can remove it")

const maxConcurrentReplyFetches = 4

// CommentService is the slice of the REST collaborator the handlers depend on.
// The rest.Client satisfies it.
type CommentService interface {
	CommentsByPost(ctx context.Context, postID persist.DBID) ([]persist.Comment, error)
	RepliesByComment(ctx context.Context, commentID persist.DBID) ([]persist.Comment, error)
	CreateComment(ctx context.Context, postID, parentID persist.DBID, content, gifURL string) (persist.Comment, error)
	EditComment(ctx context.Context, commentID persist.DBID, content string) (persist.Comment, error)
	DeleteComment(ctx context.Context, commentID persist.DBID) error
	ReactToComment(ctx context.Context, commentID persist.DBID, emoji string) (persist.Comment, error)
}

// CommentAPI implements the comment handlers, including the optimistic mutation
// protocol for reactions: snapshot, apply locally, reconcile with server truth,
// roll back on failure. Submit, edit, and delete are confirm-first; the
// asymmetry with reactions is deliberate and mirrors the product behavior.
type CommentAPI struct {
	service   CommentService
	store     *store.Store
	drafts    *drafts.Store
	validator *validator.Validate
	userID    persist.DBID
}

// LoadComments fetches a post's top-level comments, merges them into the store,
// and returns the derived view.
func (api *CommentAPI) LoadComments(ctx context.Context, postID persist.DBID) ([]persist.Comment, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"postID": validate.WithTag(postID, "required"),
	}); err != nil {
		return nil, err
	}

	comments, err := api.service.CommentsByPost(ctx, postID)
	if err != nil {
		return nil, api.remapped(ctx, err)
	}

	api.store.UpsertMany(comments)
	ids := make([]persist.DBID, 0, len(comments))
	for _, c := range comments {
		if !c.IsReply() {
			ids = append(ids, c.ID)
		}
	}
	api.store.IndexTopLevel(postID, ids...)

	return api.store.PostComments(postID), nil
}

// LoadReplies fetches and indexes the replies for the given parents, fanning out
// with a bounded worker group.
func (api *CommentAPI) LoadReplies(ctx context.Context, parentIDs ...persist.DBID) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentReplyFetches)

	for _, parentID := range parentIDs {
		parentID := parentID
		if parentID == "" {
			continue
		}
		eg.Go(func() error {
			replies, err := api.service.RepliesByComment(egCtx, parentID)
			if err != nil {
				return err
			}

			api.store.UpsertMany(replies)
			ids := make([]persist.DBID, 0, len(replies))
			for _, r := range replies {
				ids = append(ids, r.ID)
			}
			api.store.IndexReplies(parentID, ids...)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return api.remapped(ctx, err)
	}
	return nil
}

// SubmitComment creates a top-level comment. There is no optimistic insert: the
// confirmed entity from the server (or its real-time echo) is what lands in the
// store.
func (api *CommentAPI) SubmitComment(ctx context.Context, postID persist.DBID, content, gifURL string) (persist.Comment, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"postID":  validate.WithTag(postID, "required"),
		"content": validate.WithTag(content, "required,comment"),
		"gifURL":  validate.WithTag(gifURL, "gif_url"),
	}); err != nil {
		return persist.Comment{}, err
	}

	created, err := api.service.CreateComment(ctx, postID, "", validate.SanitizeComment(content), gifURL)
	if err != nil {
		return persist.Comment{}, api.remapped(ctx, err)
	}

	api.store.UpsertMany([]persist.Comment{created})
	api.store.IndexTopLevel(postID, created.ID)
	return created, nil
}

// SubmitReply creates a reply under the given parent and bumps the parent's
// reply count.
func (api *CommentAPI) SubmitReply(ctx context.Context, postID, parentID persist.DBID, content, gifURL string) (persist.Comment, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"postID":   validate.WithTag(postID, "required"),
		"parentID": validate.WithTag(parentID, "required"),
		"content":  validate.WithTag(content, "required,comment"),
		"gifURL":   validate.WithTag(gifURL, "gif_url"),
	}); err != nil {
		return persist.Comment{}, err
	}

	created, err := api.service.CreateComment(ctx, postID, parentID, validate.SanitizeComment(content), gifURL)
	if err != nil {
		return persist.Comment{}, api.remapped(ctx, err)
	}

	api.store.UpsertMany([]persist.Comment{created})
	api.store.IndexReplies(parentID, created.ID)
	api.store.AdjustReplyCount(parentID, 1)
	return created, nil
}

// EditComment submits the new content and replaces the entity with the server's
// response. Edits are not optimistic; the saved draft is cleared on success.
func (api *CommentAPI) EditComment(ctx context.Context, commentID persist.DBID, content string) (persist.Comment, error) {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"commentID": validate.WithTag(commentID, "required"),
		"content":   validate.WithTag(content, "required,comment"),
	}); err != nil {
		return persist.Comment{}, err
	}

	updated, err := api.service.EditComment(ctx, commentID, validate.SanitizeComment(content))
	if err != nil {
		return persist.Comment{}, api.remapped(ctx, err)
	}

	api.store.UpsertMany([]persist.Comment{updated})
	api.drafts.Clear(ctx, commentID)
	return updated, nil
}

// DeleteComment removes the comment server-side first and mirrors the removal
// locally only after confirmation. Deleting optimistically would leave the UI
// out of sync if the remote delete failed.
func (api *CommentAPI) DeleteComment(ctx context.Context, commentID persist.DBID) error {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"commentID": validate.WithTag(commentID, "required"),
	}); err != nil {
		return err
	}

	comment, ok := api.store.Comment(commentID)
	if ok && comment.AuthorID != api.userID {
		return ErrOnlyRemoveOwnComment
	}

	if err := api.service.DeleteComment(ctx, commentID); err != nil {
		return api.remapped(ctx, err)
	}

	api.store.Remove(commentID)
	if ok && comment.IsReply() {
		api.store.AdjustReplyCount(comment.ParentID, -1)
	}
	return nil
}

// ReactToComment toggles the session user's reaction optimistically, then
// reconciles with the server's authoritative response. On failure the
// pre-mutation reaction state is restored exactly.
func (api *CommentAPI) ReactToComment(ctx context.Context, commentID persist.DBID, emoji string) error {
	if err := validate.ValidateFields(api.validator, validate.ValidationMap{
		"commentID": validate.WithTag(commentID, "required"),
		"emoji":     validate.WithTag(emoji, "required"),
	}); err != nil {
		return err
	}

	current, ok := api.store.Comment(commentID)
	if !ok {
		return persist.ErrCommentNotFoundByID{ID: commentID}
	}

	snapshot := current.Clone()

	next := current.Reactions.Toggle(emoji, api.userID)
	api.store.Patch(commentID, store.CommentPatch{Reactions: &next})

	updated, err := api.service.ReactToComment(ctx, commentID, emoji)
	if err != nil {
		restored := snapshot.Reactions.Clone()
		api.store.Patch(commentID, store.CommentPatch{Reactions: &restored})
		return api.remapped(ctx, err)
	}

	// server truth wins over the optimistic guess, even if they differ
	api.store.UpsertMany([]persist.Comment{updated})
	return nil
}

// SaveDraft persists in-progress edit text. Called on every keystroke; best
// effort.
func (api *CommentAPI) SaveDraft(ctx context.Context, commentID persist.DBID, text string) {
	api.drafts.Save(ctx, commentID, text)
}

// LoadDraft returns any saved in-progress edit text for the comment.
func (api *CommentAPI) LoadDraft(ctx context.Context, commentID persist.DBID) (string, bool) {
	return api.drafts.Load(ctx, commentID)
}

// CancelEdit drops the saved draft without submitting.
func (api *CommentAPI) CancelEdit(ctx context.Context, commentID persist.DBID) {
	api.drafts.Clear(ctx, commentID)
}

func (api *CommentAPI) remapped(ctx context.Context, err error) error {
	logger.For(ctx).Errorf("comment API call failed: %s", err)
	sentryutil.ReportRemappedError(ctx, err, ErrSomethingWentWrong)
	return ErrSomethingWentWrong
}
