package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-summarizer/api/handlers"
	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/internal/testutil"
	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/queue"
)

type fakeService struct {
	docs       map[string]*models.Document
	inFlight   map[string]bool
	uploadErr  error
	uploaded   []string
	title      string
	regenerate []string
}

func newFakeService() *fakeService {
	return &fakeService{
		docs: map[string]*models.Document{
			"d1": {ID: "d1", Title: "Report", SummaryStatus: models.StatusCompleted, Summary: "• done"},
		},
		inFlight: map[string]bool{},
	}
}

func (f *fakeService) Upload(_ context.Context, files []*multipart.FileHeader, title string) ([]*models.Document, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.title = title
	var out []*models.Document
	for i, fh := range files {
		f.uploaded = append(f.uploaded, fh.Filename)
		out = append(out, &models.Document{ID: fmt.Sprintf("new-%d", i), FileName: fh.Filename, SummaryStatus: models.StatusPending})
	}
	return out, nil
}

func (f *fakeService) GetDocument(_ context.Context, id string) (*models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return d, nil
}

func (f *fakeService) GetStatus(ctx context.Context, id string) (*models.SummaryState, error) {
	d, err := f.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.State(), nil
}

func (f *fakeService) Regenerate(_ context.Context, id string) (*models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if f.inFlight[id] {
		return nil, models.ErrRunInFlight
	}
	f.regenerate = append(f.regenerate, id)
	d.SummaryStatus = models.StatusPending
	d.Summary = ""
	return d, nil
}

func (f *fakeService) Delete(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return models.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeService) TriggerProcessing(context.Context, string)   {}
func (f *fakeService) Process(context.Context, string) error       { return nil }
func (f *fakeService) SweepStuck(context.Context) (int, error)     { return 0, nil }
func (f *fakeService) SweepTempFiles(context.Context) (int, error) { return 0, nil }

type fakeQueue struct{}

func (fakeQueue) Stats(context.Context) (*queue.Stats, error) {
	return &queue.Stats{Queue: "summaries", Pending: 3}, nil
}

func newRouter(svc *fakeService, checks ...handlers.HealthCheck) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewTestLogger()
	r := gin.New()
	h := handlers.NewHandlers(svc, handlers.NewHealthHandler(fakeQueue{}, checks...), log)
	SetupRoutes(r, h, []string{"http://localhost:5173"}, log)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUploadRoute(t *testing.T) {
	svc := newFakeService()
	r := newRouter(svc)

	body, ct := testutil.MultipartBody(t, "files", map[string]string{"title": "Q3"},
		testutil.Upload{Name: "a.txt", Data: []byte("hello")},
		testutil.Upload{Name: "b.pdf", Data: []byte("%PDF-1.4")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	w := do(r, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp handlers.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "new-0", resp.Document.ID)
	assert.Equal(t, []string{"a.txt", "b.pdf"}, svc.uploaded)
	assert.Equal(t, "Q3", svc.title)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestUploadRouteErrors(t *testing.T) {
	svc := newFakeService()
	r := newRouter(svc)

	body, ct := testutil.MultipartBody(t, "other", nil, testutil.Upload{Name: "a.txt", Data: []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusBadRequest, do(r, req).Code)

	svc.uploadErr = fmt.Errorf("%w: book.xlsx", models.ErrInvalidFile)
	body, ct = testutil.MultipartBody(t, "files", nil, testutil.Upload{Name: "book.xlsx", Data: []byte("x")})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusBadRequest, do(r, req).Code)

	svc.uploadErr = errors.New("disk full")
	body, ct = testutil.MultipartBody(t, "files", nil, testutil.Upload{Name: "a.txt", Data: []byte("x")})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusInternalServerError, do(r, req).Code)
}

func TestGetAndStatusRoutes(t *testing.T) {
	r := newRouter(newFakeService())

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/d1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Document models.Document `json:"document"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Report", got.Document.Title)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/d1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var state models.SummaryState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, models.StatusCompleted, state.SummaryStatus)
	assert.Equal(t, "• done", state.Summary)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Document not found")
}

func TestRegenerateRoutes(t *testing.T) {
	svc := newFakeService()
	r := newRouter(svc)

	for _, path := range []string{"/api/v1/documents/d1/regenerate", "/api/v1/documents/d1/summary"} {
		w := do(r, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusAccepted, w.Code, path)
	}
	assert.Equal(t, []string{"d1", "d1"}, svc.regenerate)

	svc.inFlight["d1"] = true
	w := do(r, httptest.NewRequest(http.MethodPost, "/api/v1/documents/d1/regenerate", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/documents/missing/regenerate", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRoute(t *testing.T) {
	svc := newFakeService()
	r := newRouter(svc)

	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/d1", nil)).Code)
	assert.Equal(t, http.StatusNotFound, do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/d1", nil)).Code)
}

func TestHealthRoute(t *testing.T) {
	r := newRouter(newFakeService(), handlers.HealthCheck{Name: "store", Check: func(context.Context) error { return nil }})
	w := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":3`)

	r = newRouter(newFakeService(), handlers.HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }})
	w = do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestCORSAndRequestID(t *testing.T) {
	r := newRouter(newFakeService())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents/d1", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := do(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	assert.Equal(t, "req-42", do(r, req).Header().Get("X-Request-ID"))
}
