package service

import (
	"context"
	"testing"
	"time"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/model"
	"cv-smart-go/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var testBuckets = pipeline.Options{DocumentsBucket: "pdfs", ScreenshotBucket: "shots"}

func storedDoc(id string, created time.Time) *model.Document {
	return &model.Document{
		ID:          id,
		Filename:    id + ".pdf",
		StoragePath: "documents/" + id + ".pdf",
		Screenshots: []string{"screenshots/" + id + "-page-1.png", "screenshots/" + id + "-page-2.png"},
		Pages:       []model.Page{{PageNumber: 1, Text: "a"}, {PageNumber: 2, Text: "b"}},
		Status:      model.StatusUploaded,
		CreatedAt:   created,
	}
}

func TestListOrderedNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := newMemDocs(storedDoc("old", base), storedDoc("new", base.Add(time.Hour)))
	svc := NewDocumentService(docs, nil, &memStore{}, testBuckets)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, 2, list[0].PageCount)
}

func TestGetIncludesScreenshotURLs(t *testing.T) {
	docs := newMemDocs(storedDoc("d1", time.Now()))
	svc := NewDocumentService(docs, nil, &memStore{}, testBuckets)

	view, err := svc.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example.com/shots/screenshots/d1-page-1.png",
		"https://cdn.example.com/shots/screenshots/d1-page-2.png",
	}, view.ScreenshotURLs)

	_, err = svc.Get(context.Background(), "nope")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestStatus(t *testing.T) {
	analyzed := storedDoc("d1", time.Now())
	analyzed.Status = model.StatusAnalyzed
	analyzed.AnalysisData = datatypes.JSON(`{"candidate_name":"Dana","skills":["Go"]}`)
	pending := storedDoc("d2", time.Now())
	svc := NewDocumentService(newMemDocs(analyzed, pending), nil, nil, testBuckets)

	st, err := svc.Status(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalyzed, st.Status)
	require.NotNil(t, st.AnalysisData)
	assert.Equal(t, "Dana", st.AnalysisData.CandidateName)

	st, err = svc.Status(context.Background(), "d2")
	require.NoError(t, err)
	assert.Nil(t, st.AnalysisData)
}

func TestUpdateDetailsMarksProcessed(t *testing.T) {
	doc := storedDoc("d1", time.Now())
	doc.CandidateName = "Dana"
	doc.Position = "Engineer"
	doc.IdentityProvisional = true
	docs := newMemDocs(doc)
	svc := NewDocumentService(docs, nil, nil, testBuckets)

	position := " Staff Engineer "
	notes := "strong referral"
	got, err := svc.UpdateDetails(context.Background(), "d1", DocumentDetails{Position: &position, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, got.Status)
	assert.Equal(t, "Dana", got.CandidateName)
	assert.Equal(t, "Staff Engineer", got.Position)
	assert.Equal(t, "strong referral", got.Notes)
	assert.False(t, got.IdentityProvisional)

	_, err = svc.UpdateDetails(context.Background(), "nope", DocumentDetails{})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestDeleteRemovesObjectsBestEffort(t *testing.T) {
	docs := newMemDocs(storedDoc("d1", time.Now()))
	store := &memStore{failKey: "screenshots/d1-page-1.png"}
	svc := NewDocumentService(docs, nil, store, testBuckets)

	require.NoError(t, svc.Delete(context.Background(), "d1"))
	assert.Equal(t, []string{"pdfs/documents/d1.pdf", "shots/screenshots/d1-page-2.png"}, store.removed)

	_, err := docs.FindByID(context.Background(), "d1")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	assert.True(t, apperr.IsKind(svc.Delete(context.Background(), "d1"), apperr.NotFound))
}
