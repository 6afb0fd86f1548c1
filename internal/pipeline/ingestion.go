// Package pipeline 定义了简历文件入库的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/config"
	"cv-smart-go/internal/model"
	"cv-smart-go/pkg/log"
	"cv-smart-go/pkg/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PageSource 是已解析文档的逐页访问接口。
type PageSource interface {
	PageCount() int
	Text(ctx context.Context, page int) (string, error)
	Links(ctx context.Context, page int) ([]model.Link, error)
}

// Parser 把原始字节解析为 PageSource。
type Parser interface {
	Parse(data []byte) (PageSource, error)
}

// RenderSession 是一次入库期间独占的渲染资源。
type RenderSession interface {
	Render(ctx context.Context, page int) ([]byte, error)
	Close() error
}

// Rasterizer 为一份文档分配渲染资源。
type Rasterizer interface {
	Acquire(ctx context.Context, data []byte) (RenderSession, error)
}

// Uploader 是带重试的对象上传。
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, data []byte, opts storage.UploadOptions) (string, error)
}

// DocumentCreator 持久化新文档。
type DocumentCreator interface {
	Create(ctx context.Context, doc *model.Document) error
}

// Options 控制入库流程的存储位置与并发度。
type Options struct {
	DocumentsBucket  string
	ScreenshotBucket string
	DocumentsPrefix  string
	ScreenshotPrefix string
	CacheControl     string
	// PageConcurrency 为 0 时所有页面同时处理。
	PageConcurrency int
}

// OptionsFromConfig 从配置组装 Options。
func OptionsFromConfig(s config.StorageConfig, in config.IngestionConfig) Options {
	return Options{
		DocumentsBucket:  s.DocumentsBucket,
		ScreenshotBucket: s.ScreenshotBucket,
		DocumentsPrefix:  s.DocumentsPrefix,
		ScreenshotPrefix: s.ScreenshotPrefix,
		CacheControl:     s.CacheControl,
		PageConcurrency:  in.PageConcurrency,
	}
}

// Result 是一次入库的返回值。
type Result struct {
	DocumentID string       `json:"documentId"`
	Pages      []model.Page `json:"pages"`
}

// Ingestor 封装了入库流程的所有依赖和逻辑。
type Ingestor struct {
	parser     Parser
	rasterizer Rasterizer
	uploader   Uploader
	docs       DocumentCreator
	opts       Options

	now   func() time.Time
	newID func() string
}

// NewIngestor 创建一个新的 Ingestor 实例。
func NewIngestor(parser Parser, rasterizer Rasterizer, uploader Uploader, docs DocumentCreator, opts Options) *Ingestor {
	return &Ingestor{
		parser:     parser,
		rasterizer: rasterizer,
		uploader:   uploader,
		docs:       docs,
		opts:       opts,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeName 把文件名中字母、数字、点和连字符以外的字符替换为下划线。
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// StorageKey 生成 <毫秒时间戳>-<清理后的文件名>。
func StorageKey(ts time.Time, name string) string {
	return fmt.Sprintf("%d-%s", ts.UnixMilli(), SanitizeName(name))
}

// ScreenshotKey 生成 <时间戳>-page-<n>.png。
func ScreenshotKey(ts time.Time, page int) string {
	return fmt.Sprintf("%d-page-%d.png", ts.UnixMilli(), page)
}

// ErrorPlaceholder 是失败页面的占位文本。
func ErrorPlaceholder(page int) string {
	return fmt.Sprintf("Error processing page %d", page)
}

// Ingest 是入库的主函数：上传原件、逐页抽取并上传截图、最后一次性写入文档记录。
// 单页失败只记录在该页上；原件上传失败、解析失败或写库失败才会让整个调用失败。
// ctx 被取消时不会写入任何文档记录。
func (p *Ingestor) Ingest(ctx context.Context, data []byte, originalName string) (*Result, error) {
	originalName = strings.TrimSpace(originalName)
	if len(data) == 0 {
		return nil, apperr.New(apperr.Validation, "pipeline.Ingest", "PDF file is required")
	}
	if originalName == "" {
		return nil, apperr.New(apperr.Validation, "pipeline.Ingest", "filename is required")
	}

	ts := p.now()
	fileName := StorageKey(ts, originalName)
	storagePath := path.Join(p.opts.DocumentsPrefix, fileName)
	log.Infof("[Ingestion] 开始处理文件, FileName: %s, Size: %d", originalName, len(data))

	// 1. 上传原始文件
	log.Infof("[Ingestion] 步骤1: 上传原始文件, Bucket: %s, Object: %s", p.opts.DocumentsBucket, storagePath)
	if _, err := p.uploader.Upload(ctx, p.opts.DocumentsBucket, storagePath, data, storage.UploadOptions{
		ContentType:  "application/pdf",
		CacheControl: p.opts.CacheControl,
	}); err != nil {
		log.Errorf("[Ingestion] 上传原始文件失败, Object: %s, Error: %v", storagePath, err)
		return nil, fmt.Errorf("upload original: %w", err)
	}

	// 2. 解析文档
	src, err := p.parser.Parse(data)
	if err != nil {
		log.Errorf("[Ingestion] 解析文档失败, FileName: %s, Error: %v", originalName, err)
		return nil, apperr.Wrap(apperr.Extraction, "pipeline.Parse", err)
	}
	pageCount := src.PageCount()
	if pageCount <= 0 {
		return nil, apperr.New(apperr.Extraction, "pipeline.Parse", "document has no pages")
	}
	log.Infof("[Ingestion] 步骤2: 文档解析成功, 共 %d 页", pageCount)

	// 3. 渲染资源在本次调用内独占，结束时释放
	session, err := p.rasterizer.Acquire(ctx, data)
	if err != nil {
		log.Warnf("[Ingestion] 渲染资源分配失败，所有截图将失败: %v", err)
		session = unavailableSession{err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warnf("[Ingestion] 释放渲染资源失败: %v", cerr)
		}
	}()

	// 4. 所有页面并发处理
	pages := make([]model.Page, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	if p.opts.PageConcurrency > 0 {
		g.SetLimit(p.opts.PageConcurrency)
	}
	for i := 0; i < pageCount; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			pages[i] = p.processPage(gctx, src, session, i+1, ts)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warnf("[Ingestion] 处理被取消, FileName: %s, 不写入文档记录", originalName)
		return nil, fmt.Errorf("ingestion cancelled: %w", err)
	}

	model.SortPages(pages)
	screenshots := make([]string, 0, pageCount)
	failed := 0
	for _, pg := range pages {
		if pg.Failed() {
			failed++
			continue
		}
		screenshots = append(screenshots, pg.ScreenshotPath)
	}
	log.Infof("[Ingestion] 步骤4: 页面处理完成, 成功 %d 页, 失败 %d 页", pageCount-failed, failed)

	// 5. 一次性写入文档记录
	doc := &model.Document{
		ID:          p.newID(),
		Filename:    originalName,
		StoragePath: storagePath,
		Pages:       pages,
		Screenshots: screenshots,
		Status:      model.StatusUploaded,
	}
	if err := p.docs.Create(ctx, doc); err != nil {
		log.Errorf("[Ingestion] 保存文档记录失败, FileName: %s, Error: %v", originalName, err)
		return nil, fmt.Errorf("insert document: %w", err)
	}

	log.Infof("[Ingestion] 文件处理成功完成, DocumentID: %s", doc.ID)
	return &Result{DocumentID: doc.ID, Pages: pages}, nil
}

// processPage 并发执行文本、链接、截图三项抽取，再上传截图。任何一步失败都吸收为页面错误。
func (p *Ingestor) processPage(ctx context.Context, src PageSource, session RenderSession, n int, ts time.Time) model.Page {
	var (
		text  string
		links []model.Link
		img   []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := src.Text(gctx, n)
		if err != nil {
			return fmt.Errorf("text: %w", err)
		}
		text = t
		return nil
	})
	g.Go(func() error {
		l, err := src.Links(gctx, n)
		if err != nil {
			return fmt.Errorf("links: %w", err)
		}
		links = l
		return nil
	})
	g.Go(func() error {
		b, err := session.Render(gctx, n)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		img = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return p.failedPage(n, apperr.Wrap(apperr.Extraction, "pipeline.Page", err))
	}

	key := path.Join(p.opts.ScreenshotPrefix, ScreenshotKey(ts, n))
	if _, err := p.uploader.Upload(ctx, p.opts.ScreenshotBucket, key, img, storage.UploadOptions{
		ContentType:  "image/png",
		CacheControl: p.opts.CacheControl,
	}); err != nil {
		return p.failedPage(n, err)
	}

	if links == nil {
		links = []model.Link{}
	}
	return model.Page{PageNumber: n, Text: text, Links: links, ScreenshotPath: key}
}

func (p *Ingestor) failedPage(n int, err error) model.Page {
	log.Warnf("[Ingestion] 第 %d 页处理失败: %v", n, err)
	return model.Page{
		PageNumber:     n,
		Text:           ErrorPlaceholder(n),
		Links:          []model.Link{},
		ScreenshotPath: "",
		Error:          err.Error(),
	}
}

// unavailableSession 在渲染资源分配失败时使用，每页渲染都返回同一个错误。
type unavailableSession struct{ err error }

func (s unavailableSession) Render(context.Context, int) ([]byte, error) {
	return nil, errors.Join(errors.New("renderer unavailable"), s.err)
}

func (unavailableSession) Close() error { return nil }
