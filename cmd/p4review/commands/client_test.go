package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientSendsUserAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "alice", r.Header.Get("X-P4-User"))
			require.Equal(t, "/api/reviews", r.URL.Path)
			require.Equal(t, "approved", r.URL.Query().Get("state"))

			json.NewEncoder(w).Encode(map[string]any{
				"reviews": []reviewSummary{{ID: 7, State: "approved"}},
			})
		},
	))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/api/", "alice")
	require.NoError(t, err)

	var resp struct {
		Reviews []reviewSummary `json:"reviews"`
	}
	err = c.Get(t.Context(), "/reviews", url.Values{
		"state": {"approved"},
	}, &resp)
	require.NoError(t, err)
	require.Len(t, resp.Reviews, 1)
	require.Equal(t, int64(7), resp.Reviews[0].ID)
}

func TestClientPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json",
				r.Header.Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "approved", body["state"])

			w.Write([]byte(`{"isValid":true}`))
		},
	))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	err = c.Post(t.Context(), "/reviews/1/transition",
		map[string]string{"state": "approved"}, nil)
	require.NoError(t, err)
}

func TestClientPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			require.Equal(t, "shelve", r.PostForm.Get("type"))
			require.Equal(t, "12", r.PostForm.Get("id"))

			w.Write([]byte(`{"isValid":true,"task":3}`))
		},
	))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	var resp struct {
		Task int64 `json:"task"`
	}
	err = c.PostForm(t.Context(), "/queue/add", url.Values{
		"type": {"shelve"}, "id": {"12"},
	}, &resp)
	require.NoError(t, err)
	require.Equal(t, int64(3), resp.Task)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"isValid":false,` +
				`"messages":{"state":"bad state","max":"too big"}}`))
		},
	))
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	err = c.Get(t.Context(), "/reviews", nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "server returned 400\n  max: too big\n  state: bad state",
		apiErr.Error())
	require.False(t, IsNotFound(err))
}

func TestClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, err := NewClient(srv.URL, "")
	require.NoError(t, err)

	err = c.Get(t.Context(), "/reviews/99", nil, nil)
	require.True(t, IsNotFound(err))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost:8080", "")
	require.Error(t, err)
}

func TestFormatSummary(t *testing.T) {
	got := formatSummary(reviewSummary{
		ID:          12,
		Author:      "alice",
		State:       "needsReview",
		UpVotes:     2,
		Description: "Fix the <em>parser</em>",
		TestStatus:  "pass",
	})
	require.Equal(t,
		"12     needsReview    alice        +2/-0  Fix the parser [tests pass]",
		got)
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "x"} {
		_, err := parseID(bad)
		require.Error(t, err, bad)
	}
}
