package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commenthub/internal/fakeservice"
	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) GetValidAccessToken(context.Context) (string, error) {
	return s.token, s.err
}

// recorder captures the last request a test server received
type recorder struct {
	hits    int32
	last    *http.Request
	body    []byte
	status  int
	ctype   string
	payload string
}

func (rec *recorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&rec.hits, 1)
		rec.last = r
		rec.body, _ = io.ReadAll(r.Body)
		if rec.ctype != "" {
			w.Header().Set("Content-Type", rec.ctype)
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		io.WriteString(w, rec.payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDo_AuthRequiredWithoutTokenNeverHitsNetwork(t *testing.T) {
	tests := []struct {
		name   string
		tokens TokenSource
	}{
		{"no token source", nil},
		{"no access token", staticTokens{err: models.ErrNoAccessToken}},
		{"refresh failed", staticTokens{err: errors.New("refresh failed")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := rec.server(t)
			c := NewClient(srv.URL, WithTokenSource(tt.tokens))

			err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/", Auth: AuthRequired}, nil)
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.KindAuthentication))
			assert.Zero(t, atomic.LoadInt32(&rec.hits))
		})
	}
}

func TestDo_AttachesBearerToken(t *testing.T) {
	rec := &recorder{ctype: "application/json", payload: `{}`}
	srv := rec.server(t)
	c := NewClient(srv.URL, WithTokenSource(staticTokens{token: "abc"}))

	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/", Auth: AuthRequired}, nil))
	assert.Equal(t, "Bearer abc", rec.last.Header.Get("Authorization"))
}

func TestDo_AuthOptionalFallsBackToAnonymous(t *testing.T) {
	rec := &recorder{ctype: "application/json", payload: `{}`}
	srv := rec.server(t)
	c := NewClient(srv.URL, WithTokenSource(staticTokens{err: models.NewAuthError(models.ErrCodeUnauthorized, "no access token", models.ErrNoAccessToken)}))

	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/", Auth: AuthOptional}, nil))
	assert.Empty(t, rec.last.Header.Get("Authorization"))
}

func TestDo_AuthNoneIgnoresTokenSource(t *testing.T) {
	rec := &recorder{ctype: "application/json", payload: `{}`}
	srv := rec.server(t)
	c := NewClient(srv.URL, WithTokenSource(staticTokens{token: "abc"}))

	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/"}, nil))
	assert.Empty(t, rec.last.Header.Get("Authorization"))
}

func TestDo_ContentTypes(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		rec := &recorder{}
		srv := rec.server(t)
		c := NewClient(srv.URL)
		require.NoError(t, c.Do(context.Background(), Request{
			Method: http.MethodPost, Path: "/x/", Body: JSONBody{Value: map[string]string{"a": "b"}},
		}, nil))
		assert.Equal(t, "application/json", rec.last.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"a":"b"}`, string(rec.body))
	})

	t.Run("multipart keeps its boundary", func(t *testing.T) {
		rec := &recorder{}
		srv := rec.server(t)
		c := NewClient(srv.URL)
		require.NoError(t, c.Do(context.Background(), Request{
			Method: http.MethodPost, Path: "/x/",
			Body: MultipartBody{
				Fields: []FormField{{Name: "text", Value: "hi"}},
				Files:  []FilePart{{Field: "files", FileName: "a.txt", Content: strings.NewReader("data")}},
			},
		}, nil))
		mediaType, params, err := mime.ParseMediaType(rec.last.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)
		assert.NotEmpty(t, params["boundary"])
		assert.Contains(t, string(rec.body), `name="files"; filename="a.txt"`)
	})

	t.Run("explicit content type wins", func(t *testing.T) {
		rec := &recorder{}
		srv := rec.server(t)
		c := NewClient(srv.URL)
		require.NoError(t, c.Do(context.Background(), Request{
			Method: http.MethodPost, Path: "/x/", Body: JSONBody{Value: 1}, ContentType: "application/vnd.custom+json",
		}, nil))
		assert.Equal(t, "application/vnd.custom+json", rec.last.Header.Get("Content-Type"))
	})
}

func TestDo_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		ctype    string
		payload  string
		wantKind models.ErrorKind
		wantMsg  string
	}{
		{"detail", 404, "application/json", `{"detail":"Not found."}`, models.KindServer, "Not found."},
		{"message", 400, "application/json", `{"message":"bad input"}`, models.KindServer, "bad input"},
		{"field errors", 400, "application/json", `{"text":["This field is required."],"files":["Too big."]}`, models.KindServer, "files: Too big.; text: This field is required."},
		{"unparseable", 502, "text/html", `<html>bad gateway</html>`, models.KindServer, "HTTP 502: Bad Gateway"},
		{"empty", 500, "", ``, models.KindServer, "HTTP 500: Internal Server Error"},
		{"unauthorized", 401, "application/json", `{"detail":"Given token not valid"}`, models.KindAuthentication, "Given token not valid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{status: tt.status, ctype: tt.ctype, payload: tt.payload}
			srv := rec.server(t)
			c := NewClient(srv.URL)

			err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/"}, nil)
			require.Error(t, err)
			var appErr *models.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantKind, appErr.Kind)
			assert.Equal(t, tt.wantMsg, appErr.Message)
			assert.Equal(t, tt.status, appErr.StatusCode)
		})
	}
}

func TestDo_NonJSONResponseIsEmpty(t *testing.T) {
	rec := &recorder{status: http.StatusNoContent}
	srv := rec.server(t)
	c := NewClient(srv.URL)

	out := map[string]string{"untouched": "yes"}
	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/x/"}, &out))
	assert.Equal(t, "yes", out["untouched"])
}

func TestDo_MalformedJSONIsProtocolError(t *testing.T) {
	rec := &recorder{ctype: "application/json", payload: `{"id":`}
	srv := rec.server(t)
	c := NewClient(srv.URL)

	var out models.Comment
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/"}, &out)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindProtocol))
}

func TestDo_TransportFailureIsNetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithTimeout(time.Second))
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/"}, nil)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindNetwork))
}

func TestDo_PropagatesRequestID(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t)
	c := NewClient(srv.URL)

	ctx := logger.ContextWithRequestID(context.Background(), "req-123")
	require.NoError(t, c.Do(ctx, Request{Method: http.MethodGet, Path: "/x/"}, nil))
	assert.Equal(t, "req-123", rec.last.Header.Get("X-Request-ID"))

	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/"}, nil))
	assert.NotEmpty(t, rec.last.Header.Get("X-Request-ID"))
}

func TestDo_RateLimitHonoursContext(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t)
	c := NewClient(srv.URL, WithRateLimit(0.001, 1))

	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x/"}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/x/"}, nil)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindNetwork))
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.hits))
}

func TestListComments_Query(t *testing.T) {
	rec := &recorder{ctype: "application/json", payload: `{"count":0,"next":null,"previous":null,"results":[]}`}
	srv := rec.server(t)
	c := NewClient(srv.URL)

	page, err := c.ListComments(context.Background(), models.ListParams{Page: 2, Ordering: "-user__email", Search: "bob smith"})
	require.NoError(t, err)
	assert.Empty(t, page.Results)

	q := rec.last.URL.Query()
	assert.Equal(t, "/comments/", rec.last.URL.Path)
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "-user__email", q.Get("ordering"))
	assert.Equal(t, "bob smith", q.Get("search"))
}

func TestCreateComment_ValidatesBeforeSending(t *testing.T) {
	tests := []struct {
		name     string
		nc       NewComment
		wantCode string
	}{
		{"empty text", NewComment{}, models.ErrCodeInvalidInput},
		{"bad extension", NewComment{Text: "x", Files: []Upload{{FileName: "evil.exe", Size: 1, Content: strings.NewReader("x")}}}, models.ErrCodeInvalidAttachment},
		{"text too big", NewComment{Text: "x", Files: []Upload{{FileName: "a.txt", Size: MaxTextAttachmentSize + 1, Content: strings.NewReader("x")}}}, models.ErrCodeInvalidAttachment},
		{"image too big", NewComment{Text: "x", Files: []Upload{{FileName: "a.PNG", Size: MaxImageAttachmentSize + 1, Content: strings.NewReader("x")}}}, models.ErrCodeInvalidAttachment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := rec.server(t)
			c := NewClient(srv.URL, WithTokenSource(staticTokens{token: "abc"}))

			_, err := c.CreateComment(context.Background(), tt.nc)
			require.Error(t, err)
			var appErr *models.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Zero(t, atomic.LoadInt32(&rec.hits))
		})
	}
}

func TestValidateUpload_Accepts(t *testing.T) {
	for _, name := range []string{"a.txt", "b.jpg", "c.JPEG", "d.png", "e.gif"} {
		assert.NoError(t, ValidateUpload(Upload{FileName: name, Size: 10, Content: strings.NewReader("x")}), name)
	}
}

func TestEndpointsAgainstFakeService(t *testing.T) {
	svc := fakeservice.New(fakeservice.Options{PageSize: 2})
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()
	defer svc.Close()

	alice, err := svc.AddUser("alice", "alice@example.com", "p1")
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		svc.Seed(alice, text, nil)
	}

	ctx := context.Background()
	c := NewClient(srv.URL)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	tokens, err := c.Login(ctx, models.LoginRequest{Username: "alice", Password: "p1"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.Refresh)

	me, err := c.CurrentUser(ctx, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, me.ID)

	refreshed, err := c.RefreshToken(ctx, tokens.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Access)
	assert.Empty(t, refreshed.Refresh)

	page, err := c.ListComments(ctx, models.ListParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Results, 2)
	assert.Equal(t, "three", page.Results[0].Text)
	require.NotNil(t, page.Next)
	assert.Nil(t, page.Previous)

	previews, err := c.ListPreviews(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, previews.Results, 1)
	assert.Equal(t, "one", previews.Results[0].Text)

	c.SetTokenSource(staticTokens{token: tokens.Access})
	preview, err := c.PreviewText(ctx, `<strong>hi</strong><script>x</script>`, "tok")
	require.NoError(t, err)
	assert.Equal(t, "<strong>hi</strong>", preview.Text)

	created, err := c.CreateComment(ctx, NewComment{Text: "hello", ChallengeToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Author.Username)
	assert.True(t, created.IsTopLevel())

	detail, err := c.GetComment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", detail.Text)

	_, err = c.GetComment(ctx, 9999)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindServer))
}
