package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"commenthub/pkg/models"
)

const maxTextFileSize = 1 << 20

// NewComment is the payload of CreateComment
type NewComment struct {
	Text           string
	ParentID       *int64
	Files          []Upload
	ChallengeToken string
}

// Comment endpoints

// ListComments retrieves one page of top-level comments
func (c *Client) ListComments(ctx context.Context, params models.ListParams) (*models.CommentPage, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Ordering != "" {
		q.Set("ordering", params.Ordering)
	}
	if params.Search != "" {
		q.Set("search", params.Search)
	}

	var page models.CommentPage
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/comments/",
		Query:  q,
		Auth:   AuthOptional,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetComment retrieves a comment with its reply subtree
func (c *Client) GetComment(ctx context.Context, id int64) (*models.Comment, error) {
	var comment models.Comment
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/comments/%d/", id),
		Auth:   AuthOptional,
	}, &comment)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// CreateComment posts a new comment or reply as multipart form data
func (c *Client) CreateComment(ctx context.Context, nc NewComment) (*models.Comment, error) {
	if nc.Text == "" {
		return nil, models.NewProtocolError(models.ErrCodeInvalidInput, "comment text is required", nil)
	}
	for _, f := range nc.Files {
		if err := ValidateUpload(f); err != nil {
			return nil, err
		}
	}

	body := MultipartBody{
		Fields: []FormField{
			{Name: "text", Value: nc.Text},
			{Name: "recaptcha_token", Value: nc.ChallengeToken},
		},
	}
	if nc.ParentID != nil {
		body.Fields = append(body.Fields, FormField{Name: "reply", Value: strconv.FormatInt(*nc.ParentID, 10)})
	}
	for _, f := range nc.Files {
		body.Files = append(body.Files, FilePart{Field: "files", FileName: f.FileName, Content: f.Content})
	}

	var comment models.Comment
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/comments/",
		Body:   body,
		Auth:   AuthRequired,
	}, &comment)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// PreviewText asks the service how text will look once cleaned and linkified
func (c *Client) PreviewText(ctx context.Context, text, challengeToken string) (*models.TextPreview, error) {
	var preview models.TextPreview
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/comments/preview-text/",
		Body:   JSONBody{Value: models.TextPreviewRequest{Text: text, ChallengeToken: challengeToken}},
		Auth:   AuthRequired,
	}, &preview)
	if err != nil {
		return nil, err
	}
	return &preview, nil
}

// ListPreviews retrieves the cached short listing of top-level comments
func (c *Client) ListPreviews(ctx context.Context, page int) (*models.PreviewPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var out models.PreviewPage
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/comments/preview/",
		Query:  q,
		Auth:   AuthOptional,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the comment service is up
func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	var status models.HealthStatus
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/comments/health/"}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// FetchText downloads a text attachment. fileRef is an absolute URL as returned
// in Attachment.FileRef, so no base URL or token is applied.
func (c *Client) FetchText(ctx context.Context, fileRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileRef, nil)
	if err != nil {
		return "", models.NewProtocolError(models.ErrCodeInvalidInput, "invalid attachment reference", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewNetworkError("failed to load text file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", models.NewServerError(resp.StatusCode, "failed to load text file")
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextFileSize))
	if err != nil {
		return "", models.NewNetworkError("failed to read text file", err)
	}
	return string(data), nil
}
