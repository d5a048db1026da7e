package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commenthub/internal/api"
	"commenthub/internal/config"
	"commenthub/internal/fakeservice"
	"commenthub/pkg/models"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.Store.Driver = "memory"
	cfg.Live.Sort = config.SortCreatedAt
	return cfg
}

func TestNew_WiresSessionIntoClient(t *testing.T) {
	svc := fakeservice.New(fakeservice.Options{})
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()
	defer svc.Close()

	alice, err := svc.AddUser("alice", "alice@example.com", "p1")
	require.NoError(t, err)

	ctx := context.Background()
	a, err := New(ctx, testConfig(srv.URL))
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Session.IsAuthenticated())

	_, err = a.Comments.AddComment(ctx, apiComment("anonymous"))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindAuthentication))

	_, err = a.Session.Login(ctx, models.LoginRequest{Username: "alice", Password: "p1"})
	require.NoError(t, err)

	created, err := a.Comments.AddComment(ctx, apiComment("hello"))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, created.Author.ID)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_UnknownStore(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Store.Driver = "etcd"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestFrom_BuildsOnce(t *testing.T) {
	svc := fakeservice.New(fakeservice.Options{})
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()
	defer svc.Close()

	cmd := &cobra.Command{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd.SetContext(Install(ctx, testConfig(srv.URL)))

	cfg, err := Config(cmd)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, cfg.API.BaseURL)

	first, err := From(cmd)
	require.NoError(t, err)
	second, err := From(cmd)
	require.NoError(t, err)
	assert.Same(t, first, second)

	Shutdown(cmd)
	Shutdown(cmd)
}

func TestFrom_WithoutInstall(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	_, err := From(cmd)
	assert.Error(t, err)
	_, err = Config(cmd)
	assert.Error(t, err)
}

func apiComment(text string) api.NewComment {
	return api.NewComment{Text: text, ChallengeToken: "test"}
}
