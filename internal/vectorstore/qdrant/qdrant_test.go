package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jansahay/internal/domain"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
	apiKey string
}

func newServer(t *testing.T, deleteStatus int, searchBody string) (*Storage, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, apiKey: r.Header.Get("api-key")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()
		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(deleteStatus)
		case r.URL.Path == "/collections/schemes/points/search":
			_, _ = w.Write([]byte(searchBody))
		default:
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "schemes"}), &calls
}

func TestStorage_InitRecreatesCollection(t *testing.T) {
	s, calls := newServer(t, http.StatusNotFound, "")
	require.NoError(t, s.Init(context.Background(), 384))

	require.Len(t, *calls, 2)
	assert.Equal(t, http.MethodDelete, (*calls)[0].method)
	assert.Equal(t, http.MethodPut, (*calls)[1].method)
	assert.Equal(t, "/collections/schemes", (*calls)[1].path)
	assert.Equal(t, "secret", (*calls)[1].apiKey)
	vectors := (*calls)[1].body["vectors"].(map[string]any)
	assert.Equal(t, float64(384), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestStorage_InitPropagatesServerError(t *testing.T) {
	s, _ := newServer(t, http.StatusInternalServerError, "")
	assert.Error(t, s.Init(context.Background(), 3))
	assert.Error(t, s.Init(context.Background(), 0))
}

func TestStorage_UpsertUsesUUIDPoints(t *testing.T) {
	s, calls := newServer(t, http.StatusOK, "")
	docs := []domain.Document{{ID: "d1", SchemeName: "A", Text: "a"}, {ID: "d1", SchemeName: "A", Text: "a"}}
	require.NoError(t, s.Upsert(context.Background(), docs, [][]float64{{1, 0}, {0, 1}}))

	points := (*calls)[0].body["points"].([]any)
	require.Len(t, points, 2)
	id0 := points[0].(map[string]any)["id"].(string)
	id1 := points[1].(map[string]any)["id"].(string)
	_, err := uuid.Parse(id0)
	assert.NoError(t, err)
	assert.NotEqual(t, id0, id1)
	assert.Equal(t, PointID("d1", 0), id0)

	assert.Error(t, s.Upsert(context.Background(), docs, nil))
}

func TestStorage_Search(t *testing.T) {
	body := `{"result":[
		{"id":"x","score":0.9,"payload":{"document_id":"d2","scheme_name":"B","position":1,"text":"bbb"}},
		{"id":"y","score":0.1,"payload":{"document_id":"d1","scheme_name":"A","position":0,"text":"aaa"}}
	]}`
	s, calls := newServer(t, http.StatusOK, body)
	res, err := s.Search(context.Background(), []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "B", res[0].Document.SchemeName)
	assert.Equal(t, "bbb", res[0].Document.Text)
	assert.InDelta(t, 0.9, res[0].Score, 1e-9)
	assert.Equal(t, float64(3), (*calls)[0].body["limit"])

	_, err = s.Search(context.Background(), []float64{1}, 0)
	assert.Error(t, err)
}
