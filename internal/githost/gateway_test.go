package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestGateway starts a fake GitHub API and returns a gateway against it.
func newTestGateway(t *testing.T, mux *http.ServeMux) *Gateway {
	t.Helper()

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	g := NewGatewayWithClient(client)
	g.forkPollInterval = time.Millisecond
	return g
}

func TestFork(t *testing.T) {
	t.Run("accepted then materialized", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widgets/forks", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"name":"widgets","owner":{"login":"helicone-bot"}}`)
		})
		gets := 0
		mux.HandleFunc("/repos/helicone-bot/widgets", func(w http.ResponseWriter, r *http.Request) {
			gets++
			if gets == 1 {
				// fork not ready yet
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, `{"name":"widgets","owner":{"login":"helicone-bot"},"clone_url":"https://github.com/helicone-bot/widgets.git","default_branch":"main"}`)
		})

		g := newTestGateway(t, mux)
		fork, err := g.Fork(context.Background(), "acme", "widgets")
		require.NoError(t, err)
		assert.Equal(t, "helicone-bot", fork.Owner)
		assert.Equal(t, "widgets", fork.Name)
		assert.Equal(t, "https://github.com/helicone-bot/widgets.git", fork.CloneURL)
		assert.Equal(t, "main", fork.DefaultBranch)
		assert.GreaterOrEqual(t, gets, 2)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		g := NewGatewayWithClient(github.NewClient(nil))
		_, err := g.Fork(context.Background(), "", "widgets")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "fork", apiErr.Op)
	})

	t.Run("api failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widgets/forks", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"forking disabled"}`)
		})

		g := newTestGateway(t, mux)
		_, err := g.Fork(context.Background(), "acme", "widgets")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})
}

func TestCreatePullRequest(t *testing.T) {
	t.Run("creates", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"number":7,"html_url":"https://github.com/acme/widgets/pull/7","state":"open"}`)
		})

		g := newTestGateway(t, mux)
		pr, err := g.CreatePullRequest(context.Background(), "acme", "widgets",
			"helicone-bot:helicone-integration-abc123", "main", "title", "body")
		require.NoError(t, err)
		assert.Equal(t, 7, pr.Number)
		assert.Equal(t, "https://github.com/acme/widgets/pull/7", pr.URL)
		assert.Equal(t, "open", pr.State)
	})

	t.Run("returns existing PR on duplicate create", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/helicone-bot/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				w.WriteHeader(http.StatusUnprocessableEntity)
				fmt.Fprint(w, `{"message":"Validation Failed","errors":[{"message":"A pull request already exists"}]}`)
				return
			}
			assert.Equal(t, "helicone-bot:helicone-integration-abc123", r.URL.Query().Get("head"))
			fmt.Fprint(w, `[{"number":3,"html_url":"https://github.com/helicone-bot/widgets/pull/3","state":"open"}]`)
		})

		g := newTestGateway(t, mux)
		pr, err := g.CreatePullRequest(context.Background(), "helicone-bot", "widgets",
			"helicone-integration-abc123", "main", "title", "body")
		require.NoError(t, err)
		assert.Equal(t, 3, pr.Number)
	})

	t.Run("rejects empty branches", func(t *testing.T) {
		g := NewGatewayWithClient(github.NewClient(nil))
		_, err := g.CreatePullRequest(context.Background(), "acme", "widgets", "", "main", "t", "b")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
	})
}
