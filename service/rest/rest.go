package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prydesocial/go-pryde/service/persist"
	"github.com/prydesocial/go-pryde/util/retry"
)

const defaultTimeout = 30 * time.Second

// ErrAPI is returned for any non-success response from the comment API.
type ErrAPI struct {
	URL     string
	Status  int
	Message string
}

func (e ErrAPI) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("comment API returned status %d for %s: %s", e.Status, e.URL, e.Message)
	}
	return fmt.Sprintf("comment API returned status %d for %s", e.Status, e.URL)
}

// Client is a typed client for the external comment REST API. Every mutating call
// returns the full updated entity, which is the authoritative state the caller
// reconciles the local store against.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientWithHTTP creates a client with a caller-supplied http.Client (tests).
func NewClientWithHTTP(baseURL, authToken string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, authToken: authToken, httpClient: httpClient}
}

type createCommentInput struct {
	PostID   persist.DBID `json:"post_id"`
	ParentID persist.DBID `json:"parent_comment_id,omitempty"`
	Content  string       `json:"content"`
	GifURL   string       `json:"gif_url,omitempty"`
}

type editCommentInput struct {
	Content string `json:"content"`
}

type reactInput struct {
	Emoji string `json:"emoji"`
}

type errorBody struct {
	Error string `json:"error"`
}

// CommentsByPost fetches the top-level comments for a post, in server order.
func (c *Client) CommentsByPost(ctx context.Context, postID persist.DBID) ([]persist.Comment, error) {
	var comments []persist.Comment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/posts/%s/comments", postID), nil, &comments)
	return comments, err
}

// RepliesByComment fetches the replies to a comment, in server order.
func (c *Client) RepliesByComment(ctx context.Context, commentID persist.DBID) ([]persist.Comment, error) {
	var comments []persist.Comment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/comments/%s/replies", commentID), nil, &comments)
	return comments, err
}

// CreateComment creates a top-level comment or a reply (when parentID is set) and
// returns the confirmed entity.
func (c *Client) CreateComment(ctx context.Context, postID, parentID persist.DBID, content, gifURL string) (persist.Comment, error) {
	var comment persist.Comment
	input := createCommentInput{PostID: postID, ParentID: parentID, Content: content, GifURL: gifURL}
	err := c.do(ctx, http.MethodPost, "/comments", input, &comment)
	return comment, err
}

// EditComment replaces the comment's content and returns the updated entity.
func (c *Client) EditComment(ctx context.Context, commentID persist.DBID, content string) (persist.Comment, error) {
	var comment persist.Comment
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/comments/%s", commentID), editCommentInput{Content: content}, &comment)
	return comment, err
}

// DeleteComment deletes the comment.
func (c *Client) DeleteComment(ctx context.Context, commentID persist.DBID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/comments/%s", commentID), nil, nil)
}

// ReactToComment toggles the authenticated user's reaction and returns the
// updated entity with its authoritative reaction state.
func (c *Client) ReactToComment(ctx context.Context, commentID persist.DBID, emoji string) (persist.Comment, error) {
	var comment persist.Comment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/comments/%s/reactions", commentID), reactInput{Emoji: emoji}, &comment)
	return comment, err
}

// CommentExists checks whether the comment is persisted server-side. A 404 is a
// definitive "no", not an error.
func (c *Client) CommentExists(ctx context.Context, commentID persist.DBID) (bool, error) {
	var comment persist.Comment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/comments/%s", commentID), nil, &comment)
	if err != nil {
		var apiErr ErrAPI
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) do(ctx context.Context, method, path string, input, output interface{}) error {
	var body io.Reader
	if input != nil {
		encoded, err := json.Marshal(input)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := retry.RetryRequest(c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := ErrAPI{URL: url, Status: resp.StatusCode}
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			apiErr.Message = eb.Error
		}
		return apiErr
	}

	if output == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(output)
}
