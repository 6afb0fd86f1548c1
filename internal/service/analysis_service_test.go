package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/lock"
	"cv-smart-go/internal/model"
	"cv-smart-go/internal/repository"
	"cv-smart-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// fakeProvider 在每次调用时检查文档是否已被重置。
type fakeProvider struct {
	docs *memDocs
	id   string

	basic    func(ctx context.Context) (model.BasicInfo, error)
	skills   func(ctx context.Context) (model.SkillsInfo, error)
	military func(ctx context.Context) (model.MilitaryInfo, error)

	mu         sync.Mutex
	staleSeen  bool
	pagesInput string
	textInput  string
}

func (f *fakeProvider) checkReset() {
	d := f.docs.snapshot(f.id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.Status != model.StatusAnalyzing || d.AnalysisData != nil {
		f.staleSeen = true
	}
}

func (f *fakeProvider) AnalyzeBasicInfo(ctx context.Context, pagesJSON string) (model.BasicInfo, error) {
	f.checkReset()
	f.mu.Lock()
	f.pagesInput = pagesJSON
	f.mu.Unlock()
	if f.basic != nil {
		return f.basic(ctx)
	}
	return model.BasicInfo{CandidateName: "Dana Levi", Position: "Backend Engineer", Email: "dana@example.com"}, nil
}

func (f *fakeProvider) AnalyzeExperience(_ context.Context, text string) (model.ExperienceInfo, error) {
	f.checkReset()
	f.mu.Lock()
	f.textInput = text
	f.mu.Unlock()
	return model.ExperienceInfo{Experience: []model.Experience{{Title: "Engineer", Company: "Acme"}}}, nil
}

func (f *fakeProvider) AnalyzeEducation(context.Context, string) (model.EducationInfo, error) {
	f.checkReset()
	return model.EducationInfo{Education: []model.Education{{Institution: "Technion", Degree: "BSc"}}}, nil
}

func (f *fakeProvider) AnalyzeSkills(ctx context.Context, _ string) (model.SkillsInfo, error) {
	f.checkReset()
	if f.skills != nil {
		return f.skills(ctx)
	}
	return model.SkillsInfo{Skills: []string{"Go"}, Languages: []string{"עברית"}}, nil
}

func (f *fakeProvider) AnalyzeMilitary(ctx context.Context, _ string) (model.MilitaryInfo, error) {
	f.checkReset()
	if f.military != nil {
		return f.military(ctx)
	}
	return model.MilitaryInfo{MilitaryService: &model.MilitaryService{Role: "Officer", Unit: "8200", Years: "2010-2013"}}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func analyzableDoc() *model.Document {
	return &model.Document{
		ID:     "doc-1",
		Status: model.StatusAnalyzed,
		Pages: []model.Page{
			{PageNumber: 2, Text: "Experience: Acme", Links: []model.Link{}},
			{PageNumber: 1, Text: "Dana Levi", Links: []model.Link{{URL: "https://github.com/dana"}}},
			{PageNumber: 3, Text: "Error processing page 3", Links: []model.Link{}, Error: "render: boom"},
		},
		AnalysisData: datatypes.JSON(`{"candidate_name":"Old Name"}`),
	}
}

func newTestAnalysis(docs *memDocs, p *fakeProvider, progress *memProgress) *analysisService {
	var pr repository.ProgressRepository
	if progress != nil {
		pr = progress
	}
	svc := NewAnalysisService(docs, pr, p, lock.NewLocalLocker(), nil, AnalysisOptions{}).(*analysisService)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return svc
}

func TestAnalyzeSuccess(t *testing.T) {
	docs := newMemDocs(analyzableDoc())
	p := &fakeProvider{docs: docs, id: "doc-1"}
	progress := &memProgress{}
	svc := newTestAnalysis(docs, p, progress)

	var snapshots []model.CVAnalysis
	result, err := svc.Analyze(context.Background(), "doc-1", func(s model.CVAnalysis) {
		snapshots = append(snapshots, s)
	})
	require.NoError(t, err)
	assert.False(t, p.staleSeen, "provider observed stale analysis data")

	// 第一次写入就是重置
	require.NotEmpty(t, docs.updates)
	first := docs.updates[0]
	assert.Equal(t, model.StatusAnalyzing, first["status"])
	v, ok := first["analysis_data"]
	assert.True(t, ok)
	assert.Nil(t, v)

	// 正文按页码拼接，失败页不进入正文，页面 JSON 带链接
	assert.Equal(t, "Dana Levi\nExperience: Acme", p.textInput)
	assert.Contains(t, p.pagesInput, "https://github.com/dana")

	d := docs.snapshot("doc-1")
	assert.Equal(t, model.StatusAnalyzed, d.Status)
	assert.Equal(t, "Dana Levi", d.CandidateName)
	assert.Equal(t, "Backend Engineer", d.Position)
	assert.False(t, d.IdentityProvisional)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(d.AnalysisData, &keys))
	got := make([]string, 0, len(keys))
	for k := range keys {
		got = append(got, k)
	}
	sort.Strings(got)
	assert.Equal(t, []string{
		"candidate_name", "education", "email", "experience", "languages", "location",
		"military_service", "phone", "position", "skills", "social_profiles",
	}, got)

	require.Len(t, snapshots, 5)
	assert.Equal(t, result.CandidateName, snapshots[4].CandidateName)
	assert.Equal(t, result.Skills, snapshots[4].Skills)
	assert.Equal(t, result.MilitaryService, snapshots[4].MilitaryService)

	last := progress.last()
	assert.Equal(t, model.StatusAnalyzed, last.Status)
	assert.Len(t, last.Completed, 5)
}

func TestAnalyzeCategoryFailureKeepsProvisionalIdentity(t *testing.T) {
	docs := newMemDocs(analyzableDoc())
	p := &fakeProvider{docs: docs, id: "doc-1"}
	p.basic = func(context.Context) (model.BasicInfo, error) {
		return model.BasicInfo{CandidateName: "Dana Levi", Position: "Backend Engineer"}, nil
	}
	parseErr := apperr.NewParseError("I am not JSON", errors.New("invalid character"))
	p.skills = func(ctx context.Context) (model.SkillsInfo, error) {
		// 等待身份信息先落库
		deadline := time.After(2 * time.Second)
		for {
			if docs.snapshot("doc-1").IdentityProvisional {
				return model.SkillsInfo{}, parseErr
			}
			select {
			case <-deadline:
				return model.SkillsInfo{}, errors.New("identity never written")
			case <-time.After(time.Millisecond):
			}
		}
	}
	progress := &memProgress{}
	svc := newTestAnalysis(docs, p, progress)

	_, err := svc.Analyze(context.Background(), "doc-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, parseErr)
	assert.True(t, apperr.IsKind(err, apperr.Parse))

	d := docs.snapshot("doc-1")
	assert.Equal(t, model.StatusError, d.Status)
	assert.Contains(t, d.ErrorDetails, "Could not parse response as JSON")
	assert.Equal(t, "Dana Levi", d.CandidateName)
	assert.True(t, d.IdentityProvisional)
	assert.Nil(t, d.AnalysisData)

	last := progress.last()
	assert.Equal(t, model.StatusError, last.Status)
	assert.NotEmpty(t, last.Error)
}

func TestAnalyzeCancelledLeavesErrorStatus(t *testing.T) {
	docs := newMemDocs(analyzableDoc())
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{docs: docs, id: "doc-1"}
	p.military = func(ctx context.Context) (model.MilitaryInfo, error) {
		cancel()
		<-ctx.Done()
		return model.MilitaryInfo{}, ctx.Err()
	}
	svc := newTestAnalysis(docs, p, nil)

	_, err := svc.Analyze(ctx, "doc-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StatusError, docs.snapshot("doc-1").Status)
}

func TestAnalyzePreconditions(t *testing.T) {
	empty := &model.Document{ID: "empty", Status: model.StatusUploaded, Pages: []model.Page{
		{PageNumber: 1, Text: "Error processing page 1", Error: "boom", Links: []model.Link{}},
	}}
	docs := newMemDocs(empty)
	svc := newTestAnalysis(docs, &fakeProvider{docs: docs, id: "empty"}, nil)

	_, err := svc.Analyze(context.Background(), "empty", nil)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
	assert.Equal(t, model.StatusUploaded, docs.snapshot("empty").Status)
	assert.Empty(t, docs.updates)

	_, err = svc.Analyze(context.Background(), "missing", nil)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = svc.Analyze(context.Background(), " ", nil)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestAnalyzeIsSingleFlightPerDocument(t *testing.T) {
	docs := newMemDocs(analyzableDoc())
	var active, peak int32
	p := &fakeProvider{docs: docs, id: "doc-1"}
	p.basic = func(context.Context) (model.BasicInfo, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&peak)
			if n <= cur || atomic.CompareAndSwapInt32(&peak, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return model.BasicInfo{CandidateName: "Dana"}, nil
	}
	svc := newTestAnalysis(docs, p, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Analyze(context.Background(), "doc-1", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
	assert.False(t, p.staleSeen)
}

type recordingProducer struct {
	tasks []tasks.AnalysisTask
	err   error
}

func (r *recordingProducer) ProduceAnalysisTask(_ context.Context, task tasks.AnalysisTask) error {
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, task)
	return nil
}

func TestEnqueueAndProcess(t *testing.T) {
	docs := newMemDocs(analyzableDoc())
	producer := &recordingProducer{}
	svc := NewAnalysisService(docs, nil, &fakeProvider{docs: docs, id: "doc-1"}, nil, producer, AnalysisOptions{})

	require.NoError(t, svc.Enqueue(context.Background(), "doc-1"))
	require.Len(t, producer.tasks, 1)
	assert.Equal(t, "doc-1", producer.tasks[0].DocumentID)

	err := svc.Enqueue(context.Background(), "missing")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	// 不存在的文档重试也不会成功，视为已处理
	assert.NoError(t, svc.Process(context.Background(), tasks.AnalysisTask{DocumentID: "missing"}))

	require.NoError(t, svc.Process(context.Background(), producer.tasks[0]))
	assert.Equal(t, model.StatusAnalyzed, docs.snapshot("doc-1").Status)
}

func TestCorpora(t *testing.T) {
	text, pagesJSON, err := Corpora(analyzableDoc().Pages)
	require.NoError(t, err)
	assert.Equal(t, "Dana Levi\nExperience: Acme", text)

	var pages []model.Page
	require.NoError(t, json.Unmarshal([]byte(pagesJSON), &pages))
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
	}
}

func TestEnqueueInProcessStopsWithBackground(t *testing.T) {
	docs := newMemDocs(analyzableDoc())
	started := make(chan struct{})
	p := &fakeProvider{docs: docs, id: "doc-1"}
	p.military = func(ctx context.Context) (model.MilitaryInfo, error) {
		close(started)
		<-ctx.Done()
		return model.MilitaryInfo{}, ctx.Err()
	}
	appCtx, stop := context.WithCancel(context.Background())
	defer stop()
	svc := NewAnalysisService(docs, nil, p, nil, nil, AnalysisOptions{Background: appCtx})

	require.NoError(t, svc.Enqueue(context.Background(), "doc-1"))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("analysis did not start")
	}

	// 停机取消后文档必须落到终态
	stop()
	assert.Eventually(t, func() bool {
		return docs.snapshot("doc-1").Status == model.StatusError
	}, 2*time.Second, 10*time.Millisecond)
}
