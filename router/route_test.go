package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	handlers "github.com/gigapi/gigaview/handler"
	"github.com/gigapi/gigaview/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	lastQuery *model.DataRequest
	lastMap   *model.MapRequest
	err       error
}

func (f *fakeService) Query(ctx context.Context, req *model.DataRequest) (*model.TabularResponse, error) {
	f.lastQuery = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.TabularResponse{
		Data:       []model.Row{model.NewRow([]string{"b", "a"}, []any{"y", int64(5)})},
		Columns:    []model.Column{{Name: "b", Type: model.TypeString}, {Name: "a", Type: model.TypeBigint}},
		TotalItems: 1,
		QuerySize:  1,
	}, nil
}

func (f *fakeService) Map(ctx context.Context, req *model.MapRequest) (*model.MapResponse, error) {
	f.lastMap = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.MapResponse{Points: []model.ClusterPoint{{Geohash: "s00", Count: 2}}}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	res := rec.Result()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(data)
}

func TestQueryRoute(t *testing.T) {
	svc := &fakeService{}
	r := NewRouter(&handlers.Handler{Service: svc})

	res, body := do(t, r, http.MethodPost, "/api/v1/query",
		`{"dataset":"weather","columns":["b","a"],"limit":5}`)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Equal(t, "weather", svc.lastQuery.Dataset)
	assert.Equal(t, 5, *svc.lastQuery.Limit)
	assert.JSONEq(t, `{
		"data":[{"b":"y","a":5}],
		"columns":[{"name":"b","type":"STRING"},{"name":"a","type":"BIGINT"}],
		"totalItems":1,
		"querySize":1
	}`, body)
	// row keys keep column order
	assert.Less(t, strings.Index(body, `"b":"y"`), strings.Index(body, `"a":5`))
}

func TestMapRoute(t *testing.T) {
	svc := &fakeService{}
	r := NewRouter(&handlers.Handler{Service: svc})
	res, body := do(t, r, http.MethodPost, "/api/v1/map", `{"dataset":"x","lat":"la","lon":"lo"}`)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Equal(t, "la", svc.lastMap.Lat)

	var decoded model.MapResponse
	require.NoError(t, jsoniter.UnmarshalFromString(body, &decoded))
	require.Len(t, decoded.Points, 1)
	assert.Equal(t, 2, decoded.Points[0].Count)
}

func TestErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{model.NewCompileErr("bad", nil), http.StatusBadRequest, model.CompileErr},
		{model.NewOverloadErr("busy", nil), http.StatusServiceUnavailable, model.OverloadErr},
		{model.NewEngineErr("boom", errors.New("binder error")), http.StatusInternalServerError, model.EngineErr},
		{model.NewCacheErr("full", nil, nil), http.StatusBadGateway, model.CacheErr},
		{errors.New("plain"), http.StatusInternalServerError, ""},
	}
	for _, c := range cases {
		r := NewRouter(&handlers.Handler{Service: &fakeService{err: c.err}})
		res, body := do(t, r, http.MethodPost, "/api/v1/query", `{"dataset":"x"}`)
		assert.Equal(t, c.status, res.StatusCode, body)
		assert.Equal(t, c.code, jsoniter.Get([]byte(body), "code").ToString())
	}
}

func TestMalformedBody(t *testing.T) {
	r := NewRouter(&handlers.Handler{Service: &fakeService{}})
	res, _ := do(t, r, http.MethodPost, "/api/v1/query", `{"limit":`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, r, http.MethodPost, "/api/v1/query", ``)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, r, http.MethodGet, "/api/v1/query", ``)
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestHealthAndPing(t *testing.T) {
	r := NewRouter(&handlers.Handler{Service: &fakeService{}})
	res, body := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	res, body = do(t, r, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "pong", body)

	res, _ = do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
