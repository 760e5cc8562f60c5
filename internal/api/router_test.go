package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/LJTian/NewsHarvest/internal/harvest"
	"github.com/LJTian/NewsHarvest/internal/pipeline"
	"github.com/LJTian/NewsHarvest/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	term, source string
	limit        int
	err          error
	pingErr      error
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeStore) ListSources(context.Context) ([]storage.NewsSource, error) {
	return []storage.NewsSource{{ID: 1, Code: "guardian"}, {ID: 2, Code: "bbc"}}, f.err
}

func (f *fakeStore) ListArticles(_ context.Context, term, source string, limit int) ([]storage.Article, error) {
	f.term, f.source, f.limit = term, source, limit
	if f.err != nil {
		return nil, f.err
	}
	return []storage.Article{{RecordID: 0, SearchTerm: term, ArticleTitle: "T"}}, nil
}

type fakeHarvester struct {
	task harvest.Task
	err  error
}

func (f *fakeHarvester) Harvest(_ context.Context, task harvest.Task) (*harvest.Result, error) {
	f.task = task
	if f.err != nil {
		return nil, f.err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return &harvest.Result{Source: string(task.Kind), Term: task.Term, Inserted: 3}, nil
}

func setup(store *fakeStore, h *fakeHarvester) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewServer(store, h, nil).RegisterRoutes(r)
	return r
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	w := do(setup(&fakeStore{}, &fakeHarvester{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = do(setup(&fakeStore{pingErr: errors.New("connection refused")}, &fakeHarvester{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestListSources(t *testing.T) {
	w := do(setup(&fakeStore{}, &fakeHarvester{}), http.MethodGet, "/api/v1/sources", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]any)
	assert.Len(t, data, 2)
}

func TestListArticles(t *testing.T) {
	store := &fakeStore{}
	r := setup(store, &fakeHarvester{})

	w := do(r, http.MethodGet, "/api/v1/articles?term=hs2&source=BBC&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hs2", store.term)
	assert.Equal(t, "bbc", store.source)
	assert.Equal(t, 5, store.limit)

	w = do(r, http.MethodGet, "/api/v1/articles?limit=abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, store.limit)

	w = do(r, http.MethodGet, "/api/v1/articles?source=reuters", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.err = errors.New("db down")
	w = do(r, http.MethodGet, "/api/v1/articles", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestHarvestOK(t *testing.T) {
	h := &fakeHarvester{}
	w := do(setup(&fakeStore{}, h), http.MethodPost, "/api/v1/harvest", `{"term":"hs2","source":"Guardian","pages":[1,2],"save":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, collector.KindGuardian, h.task.Kind)
	assert.Equal(t, []int{1, 2}, h.task.Pages)
	assert.True(t, h.task.Save)

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "guardian", data["source"])
	assert.EqualValues(t, 3, data["inserted"])
}

func TestHarvestDefaultsToFirstPage(t *testing.T) {
	h := &fakeHarvester{}
	w := do(setup(&fakeStore{}, h), http.MethodPost, "/api/v1/harvest", `{"term":"hs2","source":"bbc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{1}, h.task.Pages)
}

func TestHarvestErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "malformed json", body: `{"term":`, want: http.StatusBadRequest},
		{name: "empty term", body: `{"term":" ","source":"bbc"}`, want: http.StatusBadRequest},
		{name: "bad page", body: `{"term":"hs2","source":"bbc","pages":[0]}`, want: http.StatusBadRequest},
		{name: "unknown source", body: `{"term":"hs2","source":"reuters"}`, want: http.StatusBadRequest},
		{
			name: "missing key",
			body: `{"term":"hs2","source":"guardian"}`,
			err:  fmt.Errorf("guardian source: %w", collector.ErrMissingAPIKey),
			want: http.StatusServiceUnavailable,
		},
		{
			name: "source down",
			body: `{"term":"hs2","source":"bbc"}`,
			err:  &pipeline.RunError{Source: "bbc", Stage: pipeline.StageBuildingAddresses, Err: errors.New("no such host")},
			want: http.StatusBadGateway,
		},
		{name: "other", body: `{"term":"hs2","source":"bbc"}`, err: errors.New("disk full"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(setup(&fakeStore{}, &fakeHarvester{err: tc.err}), http.MethodPost, "/api/v1/harvest", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}
