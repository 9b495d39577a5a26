package publicapi

import (
	"errors"

	"github.com/prydesocial/go-pryde/service/drafts"
	"github.com/prydesocial/go-pryde/service/persist"
	"github.com/prydesocial/go-pryde/service/store"
	"github.com/prydesocial/go-pryde/validate"
)

// ErrSomethingWentWrong is the generic user-facing failure surfaced when an API
// call fails for reasons the user cannot act on. The raw error is logged and
// reported, never shown verbatim.
var ErrSomethingWentWrong = errors.New("something went wrong, please try again")

// PublicAPI is the handler surface the presentation layer calls in response to
// user gestures. It never reaches into the rendering layer; the UI reads back
// through the store's derived views.
type PublicAPI struct {
	Comment *CommentAPI
}

// New wires the handler surface for the given session user.
func New(service CommentService, entityStore *store.Store, draftStore *drafts.Store, userID persist.DBID) *PublicAPI {
	v := validate.New()
	return &PublicAPI{
		Comment: &CommentAPI{
			service:   service,
			store:     entityStore,
			drafts:    draftStore,
			validator: v,
			userID:    userID,
		},
	}
}
