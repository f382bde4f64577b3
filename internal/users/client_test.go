package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newUserServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/known":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id": "known", "name": "Test User"}`))
		case "/users/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("User not found"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Exists(t *testing.T) {
	srv := newUserServer(t)
	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t))
	defer c.Close()
	ctx := context.Background()

	ok, err := c.Exists(ctx, "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Exists(ctx, "broken")
	assert.ErrorContains(t, err, "unexpected status: 500")
}

func TestClient_Unreachable(t *testing.T) {
	srv := newUserServer(t)
	url := srv.URL
	srv.Close()

	c := NewClient(url, 200*time.Millisecond, zaptest.NewLogger(t))
	defer c.Close()

	_, err := c.Exists(context.Background(), "known")
	assert.ErrorContains(t, err, "error making request to user API")
}
