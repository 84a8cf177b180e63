package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

func TestResolveList_Pages(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lists/list-1/members", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		seen = append(seen, r.URL.Query().Get("page"))
		switch page {
		case 1:
			fmt.Fprint(w, `{"recipient_ids":["r1","r2"],"next_page":2}`)
		case 2:
			fmt.Fprint(w, `{"recipient_ids":["r3","r4"],"next_page":3}`)
		default:
			fmt.Fprint(w, `{"recipient_ids":["r5"]}`)
		}
	}))
	defer srv.Close()

	ids, err := NewHTTPClient(srv.URL, "k", 2, srv.Client()).ResolveList(context.Background(), "list-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, ids)
	assert.Equal(t, []string{"1", "2", "3"}, seen)
}

func TestResolveList_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", 0, srv.Client()).ResolveList(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveList_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"recipient_ids":[]}`)
	}))
	defer srv.Close()

	ids, err := NewHTTPClient(srv.URL, "", 0, srv.Client()).ResolveList(context.Background(), "list-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolveList_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", 0, srv.Client()).ResolveList(context.Background(), "list-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
