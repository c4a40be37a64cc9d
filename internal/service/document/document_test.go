package document

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-summarizer/internal/acquire"
	"github.com/feichai0017/document-summarizer/internal/agent"
	"github.com/feichai0017/document-summarizer/internal/agent/document/docx"
	"github.com/feichai0017/document-summarizer/internal/agent/document/pdf"
	"github.com/feichai0017/document-summarizer/internal/agent/document/text"
	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/internal/store"
	"github.com/feichai0017/document-summarizer/internal/summarizer"
	"github.com/feichai0017/document-summarizer/internal/testutil"
	"github.com/feichai0017/document-summarizer/internal/utils/validator"
	"github.com/feichai0017/document-summarizer/pkg/lock"
	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/storage"
	"github.com/feichai0017/document-summarizer/pkg/storage/local"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return d.err
}

func (d *recordingDispatcher) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

type stubCompleter struct {
	reply string
	err   error
	// wait blocks Complete until the context ends
	wait bool
	// gate, when set, holds Complete until it is closed
	gate  chan struct{}
	calls atomic.Int32
	last  atomic.Value
}

func (c *stubCompleter) Name() string { return "stub" }

func (c *stubCompleter) Complete(ctx context.Context, _, user string) (string, error) {
	c.calls.Add(1)
	c.last.Store(user)
	if c.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.reply, c.err
}

type harness struct {
	svc        *DocumentService
	store      *store.MemoryStore
	locker     *lock.MemoryLocker
	completer  *stubCompleter
	dispatcher *recordingDispatcher
	root       string
	tempDir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewTestLogger()
	root := t.TempDir()
	tempDir := t.TempDir()

	uploads, err := local.NewLocalStorage(root, "uploads", log)
	require.NoError(t, err)

	h := &harness{
		store:      store.NewMemoryStore(),
		locker:     lock.NewMemoryLocker(),
		completer:  &stubCompleter{reply: "• Purpose: quarterly review"},
		dispatcher: &recordingDispatcher{},
		root:       root,
		tempDir:    tempDir,
	}

	cfg := DefaultServiceConfig()
	h.svc = NewService(Deps{
		Store:      h.store,
		Locker:     h.locker,
		Acquirer:   acquire.New(acquire.Config{TempDir: tempDir, LegacyRoot: root, MaxBytes: 10 << 20}, storage.NewRegistry(), log),
		Extractor:  agent.NewRouter(log, pdf.NewProcessor(log, 100), docx.NewProcessor(log), text.NewProcessor(log)),
		Summarizer: summarizer.New(h.completer, summarizer.Options{}, log),
		Uploads:    uploads,
		Registry:   storage.NewRegistry(uploads),
		Validator:  validator.NewDocumentValidator(log, nil),
	}, cfg, log)
	h.svc.SetDispatcher(h.dispatcher)
	return h
}

// seed stores a legacy upload and a record pointing at it.
func (h *harness) seed(t *testing.T, name string, data []byte, mutate ...func(*models.Document)) *models.Document {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "uploads", name), data, 0o644))

	doc := &models.Document{
		ID:               uuid.New().String(),
		Title:            name,
		FileName:         name,
		StorageReference: "/uploads/" + name,
		SummaryStatus:    models.StatusPending,
		SummaryUpdatedAt: h.svc.now(),
	}
	for _, m := range mutate {
		m(doc)
	}
	require.NoError(t, h.store.Create(context.Background(), doc))
	return doc
}

func (h *harness) get(t *testing.T, id string) *models.Document {
	t.Helper()
	doc, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func TestProcessCompletesPDF(t *testing.T) {
	h := newHarness(t)
	body := testutil.Sentence(300)
	doc := h.seed(t, "report.pdf", testutil.BuildPDF(body))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.SummaryStatus)
	assert.Equal(t, "• Purpose: quarterly review", got.Summary)
	assert.Empty(t, got.SummaryError)
	assert.Zero(t, got.RetryCount)
	assert.Equal(t, int32(1), h.completer.calls.Load())
	assert.True(t, strings.HasPrefix(h.completer.last.Load().(string), "Document Content:\n\n"))

	// temp copies are always released
	left, _ := filepath.Glob(filepath.Join(h.tempDir, acquire.TempPrefix+"*"))
	assert.Empty(t, left)
}

func TestProcessCompletesDOCX(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "memo.docx", testutil.BuildDOCX("Memo to staff", testutil.Sentence(120)))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))
	assert.Equal(t, models.StatusCompleted, h.get(t, doc.ID).SummaryStatus)
}

func TestProcessSkipsExhaustedFailure(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)), func(d *models.Document) {
		d.SummaryStatus = models.StatusFailed
		d.SummaryError = "earlier"
		d.RetryCount = 1
	})

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Equal(t, "earlier", got.SummaryError)
	assert.Equal(t, 1, got.RetryCount)
	assert.Zero(t, h.completer.calls.Load())
}

func TestProcessScannedPDF(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "scan.pdf", testutil.BuildPDF(""))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Equal(t, msgScanned, got.SummaryError)
	assert.Equal(t, models.FailureContent, got.FailureKind)
	assert.Zero(t, got.RetryCount)
	assert.Empty(t, got.Summary)
}

func TestProcessPasswordProtectedPDF(t *testing.T) {
	h := newHarness(t)
	locked := testutil.EncryptPDF(t, testutil.BuildPDF(testutil.Sentence(300)), "secret")
	doc := h.seed(t, "locked.pdf", locked)

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Equal(t, "Extraction failed: PDF is password protected", got.SummaryError)
	assert.Equal(t, models.FailureContent, got.FailureKind)
	assert.Equal(t, 0, got.RetryCount)
	assert.Zero(t, h.completer.calls.Load())
}

func TestProcessInsufficientText(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "short.txt", []byte(strings.Repeat("x", 30)))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Equal(t, msgInsufficient, got.SummaryError)
	assert.Zero(t, got.RetryCount)
	assert.Zero(t, h.completer.calls.Load())
}

func TestProcessUnsupportedType(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "sheet.xyz", []byte(testutil.Sentence(200)))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.True(t, strings.HasPrefix(got.SummaryError, "Extraction failed: "), got.SummaryError)
	assert.Equal(t, 1, got.RetryCount)
}

func TestProcessNoReference(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "x.txt", []byte("unused"), func(d *models.Document) { d.StorageReference = "" })

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, msgNoReference, got.SummaryError)
	assert.Equal(t, models.FailureConfiguration, got.FailureKind)
	assert.Zero(t, got.RetryCount)
}

func TestProcessMissingLocalFile(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "gone.txt", []byte("x"), func(d *models.Document) { d.StorageReference = "/uploads/missing.txt" })

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Equal(t, msgLocalMissing, got.SummaryError)
	assert.Zero(t, got.RetryCount)

	// reads do not loop on a permanent failure
	_, err := h.svc.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, h.dispatcher.IDs())
}

func TestProcessNetworkFailureRetriesOnce(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "r.pdf", nil, func(d *models.Document) { d.StorageReference = "http://127.0.0.1:1/report.pdf" })
	ctx := context.Background()

	require.NoError(t, h.svc.Process(ctx, doc.ID))
	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Equal(t, models.FailureTransient, got.FailureKind)
	assert.Equal(t, 1, got.RetryCount)

	// a direct trigger is now skipped
	require.NoError(t, h.svc.Process(ctx, doc.ID))
	assert.Equal(t, 1, h.get(t, doc.ID).RetryCount)

	// one read re-triggers, keeping the count
	read, err := h.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, read.SummaryStatus)
	assert.Equal(t, 1, read.RetryCount)
	assert.Equal(t, []string{doc.ID}, h.dispatcher.IDs())

	require.NoError(t, h.svc.Process(ctx, doc.ID))
	assert.Equal(t, 2, h.get(t, doc.ID).RetryCount)

	// budget spent, reads stop scheduling runs
	_, err = h.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, h.dispatcher.IDs(), 1)
}

func TestProcessNotConfigured(t *testing.T) {
	h := newHarness(t)
	h.svc.summarizer = summarizer.New(nil, summarizer.Options{}, logger.NewTestLogger())
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, msgNotConfigured, got.SummaryError)
	assert.Equal(t, models.FailureConfiguration, got.FailureKind)
	assert.Zero(t, got.RetryCount)
}

func TestProcessUpstreamErrorIncrements(t *testing.T) {
	h := newHarness(t)
	h.completer.err = errors.New("502 bad gateway")
	doc := h.seed(t, "a.md", []byte(testutil.Sentence(200)))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Contains(t, got.SummaryError, "502")
	assert.Equal(t, 1, got.RetryCount)
}

func TestProcessSummarizeTimeout(t *testing.T) {
	h := newHarness(t)
	h.svc.config.SummarizeTimeout = 50 * time.Millisecond
	h.completer.wait = true
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, "Summarization timed out", got.SummaryError)
	assert.Equal(t, 1, got.RetryCount)
}

func TestProcessSuccessResetsRetry(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)), func(d *models.Document) {
		d.RetryCount = 1
		d.SummaryError = "earlier"
		d.FailureKind = models.FailureTransient
	})

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.SummaryStatus)
	assert.Zero(t, got.RetryCount)
	assert.Empty(t, got.SummaryError)
	assert.Equal(t, models.FailureNone, got.FailureKind)
}

func TestProcessIsNoopWhileLocked(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)))

	release, ok, err := h.locker.TryAcquire(context.Background(), doc.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))
	assert.Equal(t, models.StatusPending, h.get(t, doc.ID).SummaryStatus)
	assert.Zero(t, h.completer.calls.Load())
}

func TestProcessMissingDocument(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.svc.Process(context.Background(), "nope"))
}

func TestProcessConcurrentRunsSummarizeOnce(t *testing.T) {
	h := newHarness(t)
	h.completer.gate = make(chan struct{})
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)))

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- h.svc.Process(context.Background(), doc.ID) }()
	}

	// the run that lost the lock returns while the other is held at the gate
	require.NoError(t, <-results)
	close(h.completer.gate)
	require.NoError(t, <-results)

	assert.Equal(t, int32(1), h.completer.calls.Load())
	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.SummaryStatus)
	assert.Equal(t, 0, got.RetryCount)
}

func TestProcessCancelledBeforeStartLeavesPending(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "report.pdf", testutil.BuildPDF(testutil.Sentence(300)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.svc.Process(ctx, doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusPending, got.SummaryStatus)
	assert.Empty(t, got.SummaryError)
	assert.Equal(t, 0, got.RetryCount)
	assert.Zero(t, h.completer.calls.Load())

	held, err := h.locker.Held(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestProcessInterruptedRunLeavesPending(t *testing.T) {
	h := newHarness(t)
	h.completer.wait = true
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)), func(d *models.Document) {
		d.RetryCount = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for h.completer.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	require.NoError(t, h.svc.Process(ctx, doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusPending, got.SummaryStatus)
	assert.Equal(t, models.FailureNone, got.FailureKind)
	assert.Equal(t, 1, got.RetryCount)
}

type panicExtractor struct{}

func (panicExtractor) Extract(context.Context, string, string) models.ExtractionResult {
	panic("extractor exploded")
}

func TestProcessRecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.svc.extractor = panicExtractor{}
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)))

	require.NoError(t, h.svc.Process(context.Background(), doc.ID))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.StatusFailed, got.SummaryStatus)
	assert.Equal(t, msgInternal, got.SummaryError)
	assert.Equal(t, 1, got.RetryCount)

	held, err := h.locker.Held(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRegenerate(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "a.txt", []byte(testutil.Sentence(200)), func(d *models.Document) {
		d.SummaryStatus = models.StatusFailed
		d.SummaryError = "Insufficient"
		d.FailureKind = models.FailureContent
		d.RetryCount = 3
	})
	ctx := context.Background()

	release, ok, err := h.locker.TryAcquire(ctx, doc.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = h.svc.Regenerate(ctx, doc.ID)
	assert.ErrorIs(t, err, models.ErrRunInFlight)
	release()

	got, err := h.svc.Regenerate(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SummaryStatus)
	assert.Empty(t, got.Summary)
	assert.Empty(t, got.SummaryError)
	assert.Zero(t, got.RetryCount)
	assert.Equal(t, []string{doc.ID}, h.dispatcher.IDs())

	require.NoError(t, h.svc.Process(ctx, doc.ID))
	assert.Equal(t, models.StatusCompleted, h.get(t, doc.ID).SummaryStatus)

	_, err = h.svc.Regenerate(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetDocumentReadPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.svc.now()

	stale := h.seed(t, "stale.txt", []byte("x"), func(d *models.Document) { d.SummaryUpdatedAt = now.Add(-6 * time.Minute) })
	fresh := h.seed(t, "fresh.txt", []byte("x"), func(d *models.Document) { d.SummaryUpdatedAt = now.Add(-time.Minute) })
	none := h.seed(t, "none.txt", []byte("x"), func(d *models.Document) { d.SummaryStatus = models.StatusNone })
	done := h.seed(t, "done.txt", []byte("x"), func(d *models.Document) {
		d.SummaryStatus = models.StatusCompleted
		d.Summary = "kept"
	})

	got, err := h.svc.GetDocument(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SummaryStatus)
	assert.True(t, got.SummaryUpdatedAt.After(now.Add(-time.Minute)))

	_, err = h.svc.GetDocument(ctx, fresh.ID)
	require.NoError(t, err)

	got, err = h.svc.GetDocument(ctx, none.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.SummaryStatus)

	state, err := h.svc.GetStatus(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", state.Summary)

	assert.ElementsMatch(t, []string{stale.ID, none.ID}, h.dispatcher.IDs())

	_, err = h.svc.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetDocumentSkipsWhileLocked(t *testing.T) {
	h := newHarness(t)
	doc := h.seed(t, "a.txt", []byte("x"), func(d *models.Document) { d.SummaryStatus = models.StatusNone })

	release, _, _ := h.locker.TryAcquire(context.Background(), doc.ID, time.Minute)
	defer release()

	got, err := h.svc.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, got.SummaryStatus)
	assert.Empty(t, h.dispatcher.IDs())
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	headers := testutil.FileHeaders(t,
		testutil.Upload{Name: "a.txt", Data: []byte(testutil.Sentence(200))},
		testutil.Upload{Name: "b.pdf", Data: testutil.BuildPDF(testutil.Sentence(200))},
	)
	docs, err := h.svc.Upload(ctx, headers, "Q3")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Q3 - a.txt", docs[0].Title)
	assert.Equal(t, "Q3 - b.pdf", docs[1].Title)
	for _, d := range docs {
		assert.Equal(t, models.StatusPending, d.SummaryStatus)
		assert.True(t, strings.HasPrefix(d.StorageReference, "/uploads/"+d.ID))
		assert.FileExists(t, filepath.Join(h.root, filepath.FromSlash(d.StorageReference)))
	}
	assert.Equal(t, []string{docs[0].ID, docs[1].ID}, h.dispatcher.IDs())

	require.NoError(t, h.svc.Process(ctx, docs[0].ID))
	assert.Equal(t, models.StatusCompleted, h.get(t, docs[0].ID).SummaryStatus)
}

func TestUploadSingleTitle(t *testing.T) {
	h := newHarness(t)
	docs, err := h.svc.Upload(context.Background(),
		testutil.FileHeaders(t, testutil.Upload{Name: "minutes.md", Data: []byte("# Minutes")}), "")
	require.NoError(t, err)
	assert.Equal(t, "minutes", docs[0].Title)
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Upload(context.Background(), nil, "")
	assert.ErrorIs(t, err, models.ErrInvalidFile)

	_, err = h.svc.Upload(context.Background(),
		testutil.FileHeaders(t,
			testutil.Upload{Name: "ok.txt", Data: []byte("fine")},
			testutil.Upload{Name: "book.xlsx", Data: []byte("nope")},
		), "")
	assert.ErrorIs(t, err, models.ErrInvalidFile)

	entries, _ := os.ReadDir(filepath.Join(h.root, "uploads"))
	assert.Empty(t, entries)
	assert.Empty(t, h.dispatcher.IDs())
}

func TestUploadSurvivesDispatchFailure(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = errors.New("queue full")

	docs, err := h.svc.Upload(context.Background(),
		testutil.FileHeaders(t, testutil.Upload{Name: "a.txt", Data: []byte("hello")}), "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, h.get(t, docs[0].ID).SummaryStatus)
}

// flakyUploads fails Store for one extension once the other uploads are stored.
type flakyUploads struct {
	storage.Storage
	failExt string
	stored  chan struct{}
}

func (f *flakyUploads) Store(ctx context.Context, r io.Reader, key, contentType string) (string, error) {
	if strings.HasSuffix(key, f.failExt) {
		<-f.stored
		return "", errors.New("bucket unavailable")
	}
	ref, err := f.Storage.Store(ctx, r, key, contentType)
	close(f.stored)
	return ref, err
}

func TestUploadPartialFailureTriggersCreated(t *testing.T) {
	h := newHarness(t)
	h.svc.uploads = &flakyUploads{Storage: h.svc.uploads, failExt: ".pdf", stored: make(chan struct{})}

	docs, err := h.svc.Upload(context.Background(), testutil.FileHeaders(t,
		testutil.Upload{Name: "a.txt", Data: []byte(testutil.Sentence(200))},
		testutil.Upload{Name: "b.pdf", Data: testutil.BuildPDF(testutil.Sentence(200))},
	), "Q3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.pdf")

	require.Len(t, docs, 1)
	assert.Equal(t, "Q3 - a.txt", docs[0].Title)
	assert.Equal(t, []string{docs[0].ID}, h.dispatcher.IDs())
	assert.Equal(t, models.StatusPending, h.get(t, docs[0].ID).SummaryStatus)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	docs, err := h.svc.Upload(ctx, testutil.FileHeaders(t, testutil.Upload{Name: "a.txt", Data: []byte("hello")}), "")
	require.NoError(t, err)
	file := filepath.Join(h.root, filepath.FromSlash(docs[0].StorageReference))
	require.FileExists(t, file)

	require.NoError(t, h.svc.Delete(ctx, docs[0].ID))
	_, err = h.store.Get(ctx, docs[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoFileExists(t, file)

	assert.ErrorIs(t, h.svc.Delete(ctx, docs[0].ID), models.ErrNotFound)
}

func TestSweepStuck(t *testing.T) {
	h := newHarness(t)
	now := h.svc.now()
	stale := h.seed(t, "s.txt", []byte("x"), func(d *models.Document) { d.SummaryUpdatedAt = now.Add(-10 * time.Minute) })
	h.seed(t, "f.txt", []byte("x"))
	h.seed(t, "c.txt", []byte("x"), func(d *models.Document) {
		d.SummaryStatus = models.StatusCompleted
		d.SummaryUpdatedAt = now.Add(-time.Hour)
	})

	n, err := h.svc.SweepStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{stale.ID}, h.dispatcher.IDs())

	// refreshed, so a second sweep leaves it alone
	n, err = h.svc.SweepStuck(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepTempFiles(t *testing.T) {
	h := newHarness(t)
	old := filepath.Join(h.tempDir, acquire.TempPrefix+"abc_1_x.pdf")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	n, err := h.svc.SweepTempFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
}

func TestUploadTitle(t *testing.T) {
	assert.Equal(t, "report", uploadTitle("", "report.pdf", 1))
	assert.Equal(t, "Board pack", uploadTitle("  Board pack ", "report.pdf", 1))
	assert.Equal(t, "Board pack - report.pdf", uploadTitle("Board pack", "report.pdf", 2))
}
