package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/model"
	"cv-smart-go/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pages  int
	text   func(n int) (string, error)
	links  func(n int) ([]model.Link, error)
	jitter bool
}

func (f *fakeSource) PageCount() int { return f.pages }

func (f *fakeSource) delay() {
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
}

func (f *fakeSource) Text(_ context.Context, n int) (string, error) {
	f.delay()
	if f.text != nil {
		return f.text(n)
	}
	return fmt.Sprintf("page %d text", n), nil
}

func (f *fakeSource) Links(_ context.Context, n int) ([]model.Link, error) {
	f.delay()
	if f.links != nil {
		return f.links(n)
	}
	return nil, nil
}

type fakeParser struct {
	src *fakeSource
	err error
}

func (p fakeParser) Parse([]byte) (PageSource, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.src, nil
}

type fakeSession struct {
	failPage int
	closed   bool
}

func (s *fakeSession) Render(_ context.Context, n int) ([]byte, error) {
	if n == s.failPage {
		return nil, errors.New("canvas exploded")
	}
	return []byte(fmt.Sprintf("png-%d", n)), nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeRasterizer struct {
	session *fakeSession
	err     error
}

func (r *fakeRasterizer) Acquire(context.Context, []byte) (RenderSession, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.session, nil
}

type recordingUploader struct {
	mu      sync.Mutex
	keys    []string
	failKey func(key string) bool
	onCall  func()
}

func (u *recordingUploader) Upload(_ context.Context, bucket, key string, _ []byte, _ storage.UploadOptions) (string, error) {
	if u.onCall != nil {
		u.onCall()
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failKey != nil && u.failKey(key) {
		return "", apperr.Wrap(apperr.Upload, "test", errors.New("bucket unavailable"))
	}
	u.keys = append(u.keys, bucket+"/"+key)
	return key, nil
}

type memCreator struct {
	docs []*model.Document
	err  error
}

func (m *memCreator) Create(_ context.Context, doc *model.Document) error {
	if m.err != nil {
		return m.err
	}
	m.docs = append(m.docs, doc)
	return nil
}

var testOpts = Options{
	DocumentsBucket:  "pdfs",
	ScreenshotBucket: "pdfs",
	DocumentsPrefix:  "documents",
	ScreenshotPrefix: "screenshots",
	CacheControl:     "max-age=3600",
}

func newTestIngestor(src *fakeSource, session *fakeSession, up *recordingUploader, docs *memCreator) *Ingestor {
	ing := NewIngestor(fakeParser{src: src}, &fakeRasterizer{session: session}, up, docs, testOpts)
	ing.now = func() time.Time { return time.UnixMilli(1700000000000) }
	ing.newID = func() string { return "doc-1" }
	return ing
}

func TestIngestTwoPagesSecondRenderFails(t *testing.T) {
	src := &fakeSource{
		pages: 2,
		links: func(n int) ([]model.Link, error) {
			if n == 1 {
				return []model.Link{{URL: "https://github.com/dana", Rect: [4]float64{10, 20, 110, 32}}}, nil
			}
			return nil, nil
		},
	}
	session := &fakeSession{failPage: 2}
	up := &recordingUploader{}
	docs := &memCreator{}

	res, err := newTestIngestor(src, session, up, docs).Ingest(context.Background(), []byte("%PDF"), "Dana Levi CV.pdf")
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	assert.Equal(t, "doc-1", res.DocumentID)

	p1, p2 := res.Pages[0], res.Pages[1]
	assert.Equal(t, 1, p1.PageNumber)
	assert.NotEmpty(t, p1.Text)
	assert.Len(t, p1.Links, 1)
	assert.Equal(t, "screenshots/1700000000000-page-1.png", p1.ScreenshotPath)
	assert.Empty(t, p1.Error)

	assert.Equal(t, 2, p2.PageNumber)
	assert.Equal(t, "Error processing page 2", p2.Text)
	assert.Empty(t, p2.ScreenshotPath)
	assert.NotNil(t, p2.Links)
	assert.Empty(t, p2.Links)
	assert.Contains(t, p2.Error, "canvas exploded")

	require.Len(t, docs.docs, 1)
	doc := docs.docs[0]
	assert.Equal(t, "documents/1700000000000-Dana_Levi_CV.pdf", doc.StoragePath)
	assert.Equal(t, "Dana Levi CV.pdf", doc.Filename)
	assert.Equal(t, model.StatusUploaded, doc.Status)
	assert.Equal(t, []string{"screenshots/1700000000000-page-1.png"}, []string(doc.Screenshots))
	assert.True(t, session.closed)
	assert.Contains(t, up.keys, "pdfs/documents/1700000000000-Dana_Levi_CV.pdf")
}

func TestIngestPagesSortedRegardlessOfCompletionOrder(t *testing.T) {
	src := &fakeSource{pages: 25, jitter: true}
	docs := &memCreator{}
	res, err := newTestIngestor(src, &fakeSession{}, &recordingUploader{}, docs).Ingest(context.Background(), []byte("%PDF"), "cv.pdf")
	require.NoError(t, err)
	require.Len(t, res.Pages, 25)
	for i, p := range res.Pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.Equal(t, fmt.Sprintf("page %d text", i+1), p.Text)
	}
	assert.Len(t, docs.docs[0].Screenshots, 25)
}

func TestIngestBoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	up := &recordingUploader{onCall: func() {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}}
	ing := newTestIngestor(&fakeSource{pages: 8}, &fakeSession{}, up, &memCreator{})
	ing.opts.PageConcurrency = 2

	_, err := ing.Ingest(context.Background(), []byte("%PDF"), "cv.pdf")
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

func TestIngestAbsorbsTextAndUploadFailures(t *testing.T) {
	src := &fakeSource{
		pages: 3,
		text: func(n int) (string, error) {
			if n == 1 {
				return "", errors.New("bad font")
			}
			return "ok", nil
		},
	}
	up := &recordingUploader{failKey: func(key string) bool { return strings.HasSuffix(key, "page-3.png") }}
	res, err := newTestIngestor(src, &fakeSession{}, up, &memCreator{}).Ingest(context.Background(), []byte("%PDF"), "cv.pdf")
	require.NoError(t, err)

	assert.Contains(t, res.Pages[0].Error, "bad font")
	assert.Empty(t, res.Pages[1].Error)
	assert.Equal(t, "ok", res.Pages[1].Text)
	assert.Contains(t, res.Pages[2].Error, "bucket unavailable")
	for _, p := range res.Pages {
		if p.Failed() {
			assert.Empty(t, p.ScreenshotPath)
			assert.Empty(t, p.Links)
		}
	}
}

func TestIngestRasterizerUnavailableFailsPagesOnly(t *testing.T) {
	ing := NewIngestor(fakeParser{src: &fakeSource{pages: 2}}, &fakeRasterizer{err: errors.New("no pdftoppm")},
		&recordingUploader{}, &memCreator{}, testOpts)
	res, err := ing.Ingest(context.Background(), []byte("%PDF"), "cv.pdf")
	require.NoError(t, err)
	for _, p := range res.Pages {
		assert.Contains(t, p.Error, "no pdftoppm")
	}
}

func TestIngestOriginalUploadFailureIsFatal(t *testing.T) {
	up := &recordingUploader{failKey: func(key string) bool { return strings.HasPrefix(key, "documents/") }}
	docs := &memCreator{}
	_, err := newTestIngestor(&fakeSource{pages: 1}, &fakeSession{}, up, docs).Ingest(context.Background(), []byte("%PDF"), "cv.pdf")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Upload))
	assert.Empty(t, docs.docs)
}

func TestIngestParseFailureIsFatal(t *testing.T) {
	docs := &memCreator{}
	ing := NewIngestor(fakeParser{err: errors.New("not a pdf")}, &fakeRasterizer{session: &fakeSession{}},
		&recordingUploader{}, docs, testOpts)
	_, err := ing.Ingest(context.Background(), []byte("junk"), "cv.pdf")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Extraction))
	assert.Empty(t, docs.docs)
}

func TestIngestInsertFailureIsFatal(t *testing.T) {
	docs := &memCreator{err: apperr.Wrap(apperr.Database, "test", errors.New("deadlock"))}
	_, err := newTestIngestor(&fakeSource{pages: 1}, &fakeSession{}, &recordingUploader{}, docs).Ingest(context.Background(), []byte("%PDF"), "cv.pdf")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Database))
}

func TestIngestCancelledNeverInserts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{pages: 4, text: func(n int) (string, error) {
		if n == 2 {
			cancel()
		}
		return "t", nil
	}}
	docs := &memCreator{}
	_, err := newTestIngestor(src, &fakeSession{}, &recordingUploader{}, docs).Ingest(ctx, []byte("%PDF"), "cv.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, docs.docs)
}

func TestIngestValidation(t *testing.T) {
	ing := newTestIngestor(&fakeSource{pages: 1}, &fakeSession{}, &recordingUploader{}, &memCreator{})
	_, err := ing.Ingest(context.Background(), nil, "cv.pdf")
	assert.True(t, apperr.IsKind(err, apperr.Validation))
	_, err = ing.Ingest(context.Background(), []byte("%PDF"), "  ")
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "My_CV__2024_.pdf", SanitizeName("My CV (2024).pdf"))
	assert.Equal(t, "_____.pdf", SanitizeName("קורות.pdf"))
}
