package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func fakeCluster(t *testing.T, respond func(r *http.Request) (int, string)) (*Client, *[]recorded) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec := recorded{method: r.Method, path: r.URL.Path}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()

		status, body := respond(r)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, "milestones", nil)
	require.NoError(t, err)
	return client, &calls
}

func TestIndexMilestoneUsesDocumentID(t *testing.T) {
	client, calls := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusCreated, `{"result":"created"}`
	})

	doc := models.MilestoneDocument{ID: "abc123", Name: "AlphaGo", Importance: models.ImportancePivotal, Link: "https://deepmind.google/alphago"}
	require.NoError(t, client.IndexMilestone(context.Background(), doc))

	require.Len(t, *calls, 1)
	require.Equal(t, http.MethodPut, (*calls)[0].method)
	require.Equal(t, "/milestones/_doc/abc123", (*calls)[0].path)
	require.Equal(t, "AlphaGo", (*calls)[0].body["name"])
}

func TestIndexMilestoneError(t *testing.T) {
	client, _ := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`
	})

	err := client.IndexMilestone(context.Background(), models.MilestoneDocument{ID: "x"})
	require.ErrorContains(t, err, "mapper_parsing_exception")
}

func TestSearchMilestonesBuildsFilters(t *testing.T) {
	client, calls := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"hits":{"total":{"value":1},"hits":[{"_source":{"id":"a","name":"Transformer","importance":"pivotal"}}]}}`
	})

	res, err := client.SearchMilestones(context.Background(), SearchParams{
		Query:      "attention",
		Importance: "pivotal",
		Size:       500,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	require.Equal(t, "Transformer", res.Items[0].Name)

	body := (*calls)[0].body
	require.EqualValues(t, 200, body["size"])
	query := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Len(t, query["must"], 1)
	require.Len(t, query["filter"], 1)
	sort := body["sort"].([]any)[0].(map[string]any)
	require.Contains(t, sort, "indexed_at")
}

func TestEnsureIndexCreatesMissingIndex(t *testing.T) {
	client, calls := fakeCluster(t, func(r *http.Request) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusNotFound, ``
		}
		return http.StatusOK, `{"acknowledged":true}`
	})

	require.NoError(t, client.EnsureIndex(context.Background()))
	require.Len(t, *calls, 2)
	require.Equal(t, http.MethodPut, (*calls)[1].method)
	require.Equal(t, "/milestones", (*calls)[1].path)
	require.Contains(t, (*calls)[1].body, "mappings")
}

func TestDeleteExceptKeepsListedIDs(t *testing.T) {
	client, calls := fakeCluster(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"deleted":3}`
	})

	deleted, err := client.DeleteExcept(context.Background(), []string{"a", "b"}, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)

	require.Equal(t, "/milestones/_delete_by_query", (*calls)[0].path)
	mustNot := (*calls)[0].body["query"].(map[string]any)["bool"].(map[string]any)["must_not"].([]any)
	ids := mustNot[0].(map[string]any)["ids"].(map[string]any)["values"]
	require.Equal(t, []any{"a", "b"}, ids)
}

func TestConnectPingsCluster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := Connect(context.Background(), srv.URL, "milestones", nil, 1)
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestConnectGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Connect(context.Background(), srv.URL, "milestones", nil, 1)
	require.ErrorContains(t, err, "after 1 attempts")
}
