package httphandler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jgivc/dbload/internal/common"
	"github.com/jgivc/dbload/internal/entity"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type stubLoadService struct {
	submitted []entity.JobSnapshot
	snapshots map[string]*entity.JobSnapshot
}

func (s *stubLoadService) Submit(sourceURL, name string) *entity.JobSnapshot {
	snapshot := &entity.JobSnapshot{
		ID:        "job-1",
		URL:       sourceURL,
		Name:      name,
		StatusURL: "http://localhost:8080/-/load/status/job-1",
	}
	s.submitted = append(s.submitted, *snapshot)

	return snapshot
}

func (s *stubLoadService) Status(id string) (*entity.JobSnapshot, error) {
	snapshot, ok := s.snapshots[id]
	if !ok {
		return nil, common.ErrJobNotFoundError
	}

	return snapshot, nil
}

func newMux(srv LoadService) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /-/load", NewLoadHandler(srv, testLogger()))
	mux.Handle("GET /-/load/status/{job_id}", NewStatusHandler(srv, testLogger()))

	return mux
}

func TestLoadHandlerSuccess(t *testing.T) {
	stub := &stubLoadService{}
	mux := newMux(stub)

	req := httptest.NewRequest(http.MethodPost, "/-/load",
		strings.NewReader(`{"url": "http://example.com/data.db", "name": "new_db"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snapshot entity.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Equal(t, "job-1", snapshot.ID)
	require.Equal(t, "http://example.com/data.db", snapshot.URL)
	require.Equal(t, "new_db", snapshot.Name)
	require.NotEmpty(t, snapshot.StatusURL)
	require.Len(t, stub.submitted, 1)
}

func TestLoadHandlerInvalidJSON(t *testing.T) {
	stub := &stubLoadService{}
	mux := newMux(stub)

	req := httptest.NewRequest(http.MethodPost, "/-/load", strings.NewReader("invalid json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp["error"], "Invalid JSON")
	require.Empty(t, stub.submitted)
}

func TestLoadHandlerMissingParams(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"url": "http://example.com/db.sqlite"}`},
		{name: "missing url", body: `{"name": "test_db"}`},
		{name: "empty values", body: `{"url": "", "name": ""}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubLoadService{}
			mux := newMux(stub)

			req := httptest.NewRequest(http.MethodPost, "/-/load", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, "Missing required parameters: url or name", resp["error"])
			require.Empty(t, stub.submitted)
		})
	}
}

func TestLoadHandlerMethodNotAllowed(t *testing.T) {
	mux := newMux(&stubLoadService{})

	req := httptest.NewRequest(http.MethodGet, "/-/load", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusHandlerNotFound(t *testing.T) {
	stub := &stubLoadService{snapshots: map[string]*entity.JobSnapshot{}}
	mux := newMux(stub)

	req := httptest.NewRequest(http.MethodGet, "/-/load/status/invalid-job-id", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Job not found", resp["error"])
}

func TestStatusHandlerSuccess(t *testing.T) {
	errMsg := "download failed: boom"
	stub := &stubLoadService{snapshots: map[string]*entity.JobSnapshot{
		"job-1": {ID: "job-1", Name: "data", Done: true, Error: &errMsg},
	}}
	mux := newMux(stub)

	req := httptest.NewRequest(http.MethodGet, "/-/load/status/job-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot entity.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.True(t, snapshot.Done)
	require.NotNil(t, snapshot.Error)
	require.Equal(t, errMsg, *snapshot.Error)
}
