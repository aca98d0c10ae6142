package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediabatch/internal/batch"
	"github.com/maauso/mediabatch/internal/media"
	"github.com/maauso/mediabatch/internal/pipeline"
	"github.com/maauso/mediabatch/internal/storage"
)

// mockRunner implements batch.Runner for testing.
type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, paths []string, cfg pipeline.OperationConfig) (pipeline.Result, error) {
	args := m.Called(ctx, paths, cfg)
	return args.Get(0).(pipeline.Result), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	handlers *Handlers
	runner   *mockRunner
	repo     batch.Repository
	service  *batch.Service
}

func newTestHandlers(t *testing.T, store storage.Storage) *testEnv {
	t.Helper()
	repo := batch.NewMemoryRepository()
	runner := &mockRunner{}
	logger := testLogger()
	svc := batch.NewService(repo, runner, store, logger)

	// Disable async processing so tests control when batches run.
	handlers := NewHandlers(svc, logger, WithAsyncProcessing(false))
	return &testEnv{handlers: handlers, runner: runner, repo: repo, service: svc}
}

func postJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestHandlers(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	env.handlers.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateBatch_Success(t *testing.T) {
	env := newTestHandlers(t, nil)

	req := postJSON(t, "/batches", CreateBatchRequest{
		Paths:  []string{"/data/a.jpg", "/data/b.jpg", "/data/c.mp4"},
		Config: pipeline.OperationConfig{RemoveDuplicates: true, ProcessVideo: true},
	})
	rec := httptest.NewRecorder()

	env.handlers.CreateBatch(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateBatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "QUEUED", resp.Status)

	saved, err := env.repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.True(t, saved.Config.RemoveDuplicates)
	assert.Len(t, saved.Paths, 3)
}

func TestCreateBatch_InvalidJSON(t *testing.T) {
	env := newTestHandlers(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewReader([]byte("invalid json")))
	rec := httptest.NewRecorder()

	env.handlers.CreateBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestCreateBatch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body CreateBatchRequest
	}{
		{"no paths", CreateBatchRequest{}},
		{"relative path", CreateBatchRequest{Paths: []string{"a.png"}}},
		{"empty path", CreateBatchRequest{Paths: []string{""}}},
		{"bad brightness", CreateBatchRequest{
			Paths:  []string{"/a.png"},
			Config: pipeline.OperationConfig{BrightnessFactor: -1},
		}},
		{"bad variant", CreateBatchRequest{
			Paths:  []string{"/a.png"},
			Config: pipeline.OperationConfig{Variant: media.Variant("paint")},
		}},
		{"empty overlay", CreateBatchRequest{
			Paths:  []string{"/a.png"},
			Config: pipeline.OperationConfig{TextOverlay: &pipeline.TextOverlay{}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandlers(t, nil)
			rec := httptest.NewRecorder()

			env.handlers.CreateBatch(rec, postJSON(t, "/batches", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
		})
	}
}

func TestCreateBatch_PublishUnavailable(t *testing.T) {
	env := newTestHandlers(t, nil)
	rec := httptest.NewRecorder()

	env.handlers.CreateBatch(rec, postJSON(t, "/batches", CreateBatchRequest{
		Paths:   []string{"/a.png"},
		Publish: true,
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PUBLISH_UNAVAILABLE", decodeError(t, rec).Code)
}

func TestGetBatch_Completed(t *testing.T) {
	env := newTestHandlers(t, nil)
	ctx := context.Background()

	result := pipeline.Result{
		Processed:          []string{"/data/processed_a.jpg", "/data/processed_b.jpg", "/data/processed_c.mp4"},
		DeletedAsDuplicate: []string{"/data/processed_b.jpg"},
		Errors:             []pipeline.FileError{},
		Skipped:            []string{"/data/notes.txt"},
	}
	env.runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)

	done, err := env.service.Process(ctx, batch.CreateInput{Paths: []string{"/data/a.jpg", "/data/b.jpg", "/data/c.mp4", "/data/notes.txt"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/batches/"+done.ID, nil)
	req.SetPathValue("id", done.ID)
	rec := httptest.NewRecorder()

	env.handlers.GetBatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, done.ID, resp.ID)
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, 4, resp.Files)
	assert.Equal(t, result.Processed, resp.Processed)
	assert.Equal(t, result.DeletedAsDuplicate, resp.DeletedAsDuplicate)
	assert.Equal(t, result.Skipped, resp.Skipped)
	assert.Empty(t, resp.Errors)
	assert.NotNil(t, resp.StartedAt)
	assert.NotNil(t, resp.CompletedAt)
}

func TestGetBatch_Queued(t *testing.T) {
	env := newTestHandlers(t, nil)
	b := batch.NewWithID("batch-1", []string{"/a.png"}, pipeline.OperationConfig{})
	require.NoError(t, env.repo.Save(context.Background(), b))

	req := httptest.NewRequest(http.MethodGet, "/batches/batch-1", nil)
	req.SetPathValue("id", "batch-1")
	rec := httptest.NewRecorder()

	env.handlers.GetBatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "QUEUED", resp.Status)
	assert.Empty(t, resp.Processed)
	assert.Nil(t, resp.StartedAt)
}

func TestGetBatch_NotFound(t *testing.T) {
	env := newTestHandlers(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/batches/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()

	env.handlers.GetBatch(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BATCH_NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetBatch_MissingID(t *testing.T) {
	env := newTestHandlers(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/batches/", nil)
	rec := httptest.NewRecorder()

	env.handlers.GetBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_BATCH_ID", decodeError(t, rec).Code)
}

func TestGetBatch_WithPublications(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/processed_a.png", []byte("png"), 0o644))
	store, err := storage.NewLocalStorage(fsys, "/pub")
	require.NoError(t, err)

	env := newTestHandlers(t, store)
	env.runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(pipeline.Result{
		Processed: []string{"/data/processed_a.png"},
		Outputs:   []pipeline.Output{{Source: "/data/a.png", Path: "/data/processed_a.png"}},
	}, nil)

	done, err := env.service.Process(context.Background(), batch.CreateInput{Paths: []string{"/data/a.png"}, Publish: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/batches/"+done.ID, nil)
	req.SetPathValue("id", done.ID)
	rec := httptest.NewRecorder()
	env.handlers.GetBatch(rec, req)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Publications, 1)
	assert.Equal(t, "file:///pub/"+done.ID+"/processed_a.png", resp.Publications[0].URL)
}

func TestCancelBatch(t *testing.T) {
	env := newTestHandlers(t, nil)
	b := batch.NewWithID("batch-1", []string{"/a.png"}, pipeline.OperationConfig{})
	require.NoError(t, env.repo.Save(context.Background(), b))

	req := httptest.NewRequest(http.MethodPost, "/batches/batch-1/cancel", nil)
	req.SetPathValue("id", "batch-1")
	rec := httptest.NewRecorder()
	env.handlers.CancelBatch(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	saved, err := env.repo.FindByID(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCancelled, saved.Status)

	rec = httptest.NewRecorder()
	env.handlers.CancelBatch(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BATCH_FINISHED", decodeError(t, rec).Code)
}

func TestDeleteBatch(t *testing.T) {
	env := newTestHandlers(t, nil)
	ctx := context.Background()

	active := batch.NewWithID("active", []string{"/a.png"}, pipeline.OperationConfig{})
	require.NoError(t, env.repo.Save(ctx, active))

	req := httptest.NewRequest(http.MethodDelete, "/batches/active", nil)
	req.SetPathValue("id", "active")
	rec := httptest.NewRecorder()
	env.handlers.DeleteBatch(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, env.service.CancelBatch(ctx, "active"))
	rec = httptest.NewRecorder()
	env.handlers.DeleteBatch(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	env.handlers.DeleteBatch(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := httptest.NewRequest(http.MethodDelete, "/batches/x?outputs=maybe", nil)
	bad.SetPathValue("id", "x")
	rec = httptest.NewRecorder()
	env.handlers.DeleteBatch(rec, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Integration(t *testing.T) {
	env := newTestHandlers(t, nil)
	router := NewRouter(env.handlers, testLogger(), DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req = postJSON(t, "/batches", CreateBatchRequest{Paths: []string{"/data/a.png"}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var createResp CreateBatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&createResp))

	req = httptest.NewRequest(http.MethodGet, "/batches/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/batches", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list BatchListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Batches, 1)
}

func TestRouter_AsyncProcessing(t *testing.T) {
	repo := batch.NewMemoryRepository()
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, []string{"/data/a.png"}, mock.Anything).
		Return(pipeline.Result{Processed: []string{"/data/processed_a.png"}}, nil)
	svc := batch.NewService(repo, runner, nil, testLogger())
	router := NewRouter(NewHandlers(svc, testLogger()), testLogger(), DefaultConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postJSON(t, "/batches", CreateBatchRequest{Paths: []string{"/data/a.png"}}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var createResp CreateBatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&createResp))

	assert.Eventually(t, func() bool {
		b, err := repo.FindByID(context.Background(), createResp.ID)
		return err == nil && b.Status == batch.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 16)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestHandlers(t, nil)
	router := NewRouter(env.handlers, testLogger(), Config{AllowedOrigins: []string{"https://example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/batches", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}
