// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/lock"
	"cv-smart-go/internal/model"
	"cv-smart-go/internal/provider"
	"cv-smart-go/internal/repository"
	"cv-smart-go/pkg/log"
	"cv-smart-go/pkg/tasks"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// ProgressFunc 接收分析过程中的累计快照。并发完成的类别可能合并为一次回调，
// 但最后一次回调一定包含全部五个类别。
type ProgressFunc func(snapshot model.CVAnalysis)

// TaskProducer 把分析任务投递到消息队列。
type TaskProducer interface {
	ProduceAnalysisTask(ctx context.Context, task tasks.AnalysisTask) error
}

// AnalysisService 接口定义了简历分析相关的业务操作。
type AnalysisService interface {
	// Analyze 同步执行一次完整分析并返回合并后的画像。
	Analyze(ctx context.Context, documentID string, onProgress ProgressFunc) (*model.CVAnalysis, error)
	// Enqueue 异步提交分析任务。
	Enqueue(ctx context.Context, documentID string) error
	// Process 实现 kafka.TaskProcessor。
	Process(ctx context.Context, task tasks.AnalysisTask) error
	// Progress 返回最近一次保存的进度快照，没有时返回 nil。
	Progress(ctx context.Context, documentID string) (*repository.Progress, error)
	// Watch 订阅后续的进度快照，ctx 结束时 channel 关闭。
	Watch(ctx context.Context, documentID string) (<-chan repository.Progress, error)
}

// ErrProgressUnavailable 表示未配置进度存储。
var ErrProgressUnavailable = errors.New("progress tracking is not configured")

// AnalysisOptions 控制分析流程。
type AnalysisOptions struct {
	// Timeout 为 0 时不限制单次分析时长。
	Timeout time.Duration
	// Background 是进程内异步分析的父 ctx，停机时取消，nil 时使用 context.Background()。
	Background context.Context
}

type analysisService struct {
	docs     repository.DocumentRepository
	progress repository.ProgressRepository
	provider provider.Provider
	locker   lock.Locker
	producer TaskProducer
	opts     AnalysisOptions

	// background 用于没有配置消息队列时的异步执行。
	background context.Context
	now        func() time.Time
}

// NewAnalysisService 创建一个新的 AnalysisService 实例。progress 与 producer 可以为 nil。
func NewAnalysisService(docs repository.DocumentRepository, progress repository.ProgressRepository, p provider.Provider,
	locker lock.Locker, producer TaskProducer, opts AnalysisOptions) AnalysisService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	background := opts.Background
	if background == nil {
		background = context.Background()
	}
	return &analysisService{
		docs:       docs,
		progress:   progress,
		provider:   p,
		locker:     locker,
		producer:   producer,
		opts:       opts,
		background: background,
		now:        time.Now,
	}
}

// Corpora 构造两份分析输入：按页码顺序以换行拼接的正文，以及完整页面列表的 JSON。
// 失败页面的占位文本不进入正文。
func Corpora(pages []model.Page) (fullText, pagesJSON string, err error) {
	sorted := make([]model.Page, len(pages))
	copy(sorted, pages)
	model.SortPages(sorted)

	texts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		if p.Failed() {
			continue
		}
		texts = append(texts, p.Text)
	}
	b, err := json.Marshal(sorted)
	if err != nil {
		return "", "", err
	}
	return strings.Join(texts, "\n"), string(b), nil
}

func (s *analysisService) Analyze(ctx context.Context, documentID string, onProgress ProgressFunc) (*model.CVAnalysis, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, apperr.New(apperr.Validation, "service.Analyze", "document id is required")
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	// 同一文档同一时刻只允许一个分析
	release, err := s.locker.Acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.HasText() {
		return nil, apperr.New(apperr.Validation, "service.Analyze", "document has no extractable text")
	}
	fullText, pagesJSON, err := Corpora(doc.Pages)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "service.Analyze", err)
	}

	log.Infof("[Analysis] 开始分析, DocumentID: %s, Provider: %s, Pages: %d", documentID, s.provider.Name(), len(doc.Pages))

	// 1. 重置状态与旧结果，必须在任何请求发出之前落库
	if err := s.docs.Update(ctx, documentID, repository.Fields{
		"status":               model.StatusAnalyzing,
		"analysis_data":        nil,
		"error_details":        "",
		"identity_provisional": false,
	}); err != nil {
		return nil, err
	}

	run := &analysisRun{svc: s, documentID: documentID, onProgress: onProgress}
	run.publish(ctx, model.StatusAnalyzing, "")

	result, err := run.dispatch(ctx, fullText, pagesJSON)
	if err == nil {
		err = s.complete(ctx, documentID, result)
	}
	if err != nil {
		s.fail(ctx, run, err)
		return nil, err
	}

	run.publish(ctx, model.StatusAnalyzed, "")
	log.Infof("[Analysis] 分析完成, DocumentID: %s, Candidate: %s", documentID, result.CandidateName)
	return result, nil
}

// complete 持久化完整画像并把状态置为 analyzed。
func (s *analysisService) complete(ctx context.Context, documentID string, result *model.CVAnalysis) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	return s.docs.Update(ctx, documentID, repository.Fields{
		"analysis_data":        datatypes.JSON(data),
		"candidate_name":       result.CandidateName,
		"position":             result.Position,
		"status":               model.StatusAnalyzed,
		"identity_provisional": false,
		"error_details":        "",
	})
}

// fail 把状态置为 error。调用方的 ctx 可能已取消，这里使用独立的 ctx 保证终态写入。
func (s *analysisService) fail(ctx context.Context, run *analysisRun, cause error) {
	if provider.IsParseFailure(cause) {
		log.Errorf("[Analysis] 模型响应无法解析, DocumentID: %s, Provider: %s, Error: %v", run.documentID, s.provider.Name(), cause)
	} else {
		log.Errorf("[Analysis] 分析失败, DocumentID: %s, Error: %v", run.documentID, cause)
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.docs.Update(wctx, run.documentID, repository.Fields{
		"status":        model.StatusError,
		"error_details": cause.Error(),
	}); err != nil {
		log.Errorf("[Analysis] 写入错误状态失败, DocumentID: %s, Error: %v", run.documentID, err)
	}
	run.publish(wctx, model.StatusError, cause.Error())
}

func (s *analysisService) Enqueue(ctx context.Context, documentID string) error {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.HasText() {
		return apperr.New(apperr.Validation, "service.Enqueue", "document has no extractable text")
	}

	task := tasks.AnalysisTask{DocumentID: documentID, RequestedAt: s.now()}
	if s.producer != nil {
		if err := s.producer.ProduceAnalysisTask(ctx, task); err != nil {
			return fmt.Errorf("enqueue analysis: %w", err)
		}
		log.Infof("[Analysis] 分析任务已投递, DocumentID: %s", documentID)
		return nil
	}

	go func() {
		if err := s.Process(s.background, task); err != nil {
			log.Errorf("[Analysis] 后台分析失败, DocumentID: %s, Error: %v", documentID, err)
		}
	}()
	return nil
}

// Process 执行队列中的分析任务。校验类和不存在类错误不会因重试而改变，直接视为已处理。
func (s *analysisService) Process(ctx context.Context, task tasks.AnalysisTask) error {
	_, err := s.Analyze(ctx, task.DocumentID, nil)
	if apperr.IsKind(err, apperr.NotFound) || apperr.IsKind(err, apperr.Validation) {
		log.Warnf("[Analysis] 丢弃无法处理的任务, DocumentID: %s, Error: %v", task.DocumentID, err)
		return nil
	}
	return err
}

func (s *analysisService) Progress(ctx context.Context, documentID string) (*repository.Progress, error) {
	if s.progress == nil {
		return nil, nil
	}
	return s.progress.Latest(ctx, documentID)
}

func (s *analysisService) Watch(ctx context.Context, documentID string) (<-chan repository.Progress, error) {
	if s.progress == nil {
		return nil, ErrProgressUnavailable
	}
	return s.progress.Subscribe(ctx, documentID)
}

// analysisRun 保存一次分析的累计结果。
type analysisRun struct {
	svc        *analysisService
	documentID string
	onProgress ProgressFunc

	mu        sync.Mutex
	result    model.CVAnalysis
	completed []model.Category
}

// dispatch 并发发出五个类别的请求，任一失败都会取消其余请求。
func (r *analysisRun) dispatch(ctx context.Context, fullText, pagesJSON string) (*model.CVAnalysis, error) {
	p := r.svc.provider
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		info, err := p.AnalyzeBasicInfo(gctx, pagesJSON)
		if err != nil {
			return err
		}
		// 身份信息先行落库，标记为临时
		if err := r.svc.docs.Update(gctx, r.documentID, repository.Fields{
			"candidate_name":       info.CandidateName,
			"position":             info.Position,
			"status":               model.StatusAnalyzing,
			"identity_provisional": true,
		}); err != nil {
			return err
		}
		r.merge(gctx, info)
		return nil
	})
	g.Go(func() error {
		info, err := p.AnalyzeExperience(gctx, fullText)
		if err != nil {
			return err
		}
		r.merge(gctx, info)
		return nil
	})
	g.Go(func() error {
		info, err := p.AnalyzeEducation(gctx, fullText)
		if err != nil {
			return err
		}
		r.merge(gctx, info)
		return nil
	})
	g.Go(func() error {
		info, err := p.AnalyzeSkills(gctx, fullText)
		if err != nil {
			return err
		}
		r.merge(gctx, info)
		return nil
	})
	g.Go(func() error {
		info, err := p.AnalyzeMilitary(gctx, fullText)
		if err != nil {
			return err
		}
		r.merge(gctx, info)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	result := r.result
	result.Normalize()
	return &result, nil
}

// merge 合并一个类别的结果并推送快照。回调在锁内串行执行，快照只会单调增长。
func (r *analysisRun) merge(ctx context.Context, part model.Partial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Merge(part)
	r.completed = append(r.completed, part.Category())
	log.Debugf("[Analysis] 类别完成, DocumentID: %s, Category: %s, Completed: %d/%d",
		r.documentID, part.Category(), len(r.completed), len(model.Categories))

	if r.onProgress != nil {
		r.onProgress(r.result)
	}
	r.saveLocked(ctx, model.StatusAnalyzing, "")
}

func (r *analysisRun) publish(ctx context.Context, status model.Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveLocked(ctx, status, errMsg)
}

func (r *analysisRun) saveLocked(ctx context.Context, status model.Status, errMsg string) {
	if r.svc.progress == nil {
		return
	}
	snapshot := r.result
	snapshot.Normalize()
	p := repository.Progress{
		DocumentID: r.documentID,
		Status:     status,
		Completed:  append([]model.Category(nil), r.completed...),
		Analysis:   snapshot,
		Error:      errMsg,
		UpdatedAt:  r.svc.now(),
	}
	if err := r.svc.progress.Save(ctx, p); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("[Analysis] 保存进度失败, DocumentID: %s, Error: %v", r.documentID, err)
	}
}
