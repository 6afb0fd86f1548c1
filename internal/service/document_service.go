package service

import (
	"context"
	"encoding/json"
	"strings"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/model"
	"cv-smart-go/internal/pipeline"
	"cv-smart-go/internal/repository"
	"cv-smart-go/pkg/log"
	"cv-smart-go/pkg/storage"
)

// DocumentDetails 是手动编辑时可修改的字段。nil 表示不修改该字段。
type DocumentDetails struct {
	CandidateName *string `json:"candidateName"`
	Position      *string `json:"position"`
	Notes         *string `json:"notes"`
}

// DocumentStatus 是状态轮询接口返回的视图。
type DocumentStatus struct {
	Status              model.Status      `json:"status"`
	CandidateName       string            `json:"candidateName"`
	Position            string            `json:"position"`
	IdentityProvisional bool              `json:"identityProvisional"`
	AnalysisData        *model.CVAnalysis `json:"analysisData"`
	ErrorDetails        string            `json:"errorDetails,omitempty"`
}

// DocumentView 是单个文档的详情视图，附带截图的公开访问地址。
type DocumentView struct {
	*model.Document
	ScreenshotURLs []string `json:"screenshotUrls"`
}

// DocumentService 接口定义了简历文档管理相关的业务操作。
type DocumentService interface {
	Ingest(ctx context.Context, data []byte, filename string) (*pipeline.Result, error)
	List(ctx context.Context) ([]model.DocumentSummary, error)
	Get(ctx context.Context, id string) (*DocumentView, error)
	Status(ctx context.Context, id string) (*DocumentStatus, error)
	UpdateDetails(ctx context.Context, id string, details DocumentDetails) (*model.Document, error)
	Delete(ctx context.Context, id string) error
	ScreenshotURL(key string) string
}

// Ingestor 是入库流程的入口。
type Ingestor interface {
	Ingest(ctx context.Context, data []byte, originalName string) (*pipeline.Result, error)
}

type documentService struct {
	docs     repository.DocumentRepository
	ingestor Ingestor
	store    storage.ObjectStore
	buckets  pipeline.Options
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docs repository.DocumentRepository, ingestor Ingestor, store storage.ObjectStore, opts pipeline.Options) DocumentService {
	return &documentService{docs: docs, ingestor: ingestor, store: store, buckets: opts}
}

func (s *documentService) Ingest(ctx context.Context, data []byte, filename string) (*pipeline.Result, error) {
	return s.ingestor.Ingest(ctx, data, filename)
}

// List 按创建时间倒序返回所有文档的精简视图。
func (s *documentService) List(ctx context.Context) ([]model.DocumentSummary, error) {
	docs, err := s.docs.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.DocumentSummary, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].Summary())
	}
	return out, nil
}

func (s *documentService) Get(ctx context.Context, id string) (*DocumentView, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(doc.Screenshots))
	for _, key := range doc.Screenshots {
		urls = append(urls, s.ScreenshotURL(key))
	}
	return &DocumentView{Document: doc, ScreenshotURLs: urls}, nil
}

// Status 返回分析状态与当前画像，analysis_data 为 NULL 时 AnalysisData 为 nil。
func (s *documentService) Status(ctx context.Context, id string) (*DocumentStatus, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &DocumentStatus{
		Status:              doc.Status,
		CandidateName:       doc.CandidateName,
		Position:            doc.Position,
		IdentityProvisional: doc.IdentityProvisional,
		ErrorDetails:        doc.ErrorDetails,
	}
	if raw := strings.TrimSpace(string(doc.AnalysisData)); raw != "" && raw != "null" {
		var a model.CVAnalysis
		if err := json.Unmarshal(doc.AnalysisData, &a); err != nil {
			return nil, apperr.Wrapf(apperr.Database, "service.Status", err, "corrupt analysis_data for %s", id)
		}
		st.AnalysisData = &a
	}
	return st, nil
}

// UpdateDetails 是手动编辑：覆盖给出的字段并把状态置为 processed。
func (s *documentService) UpdateDetails(ctx context.Context, id string, details DocumentDetails) (*model.Document, error) {
	if _, err := s.docs.FindByID(ctx, id); err != nil {
		return nil, err
	}
	fields := repository.Fields{
		"status":               model.StatusProcessed,
		"identity_provisional": false,
	}
	if details.CandidateName != nil {
		fields["candidate_name"] = strings.TrimSpace(*details.CandidateName)
	}
	if details.Position != nil {
		fields["position"] = strings.TrimSpace(*details.Position)
	}
	if details.Notes != nil {
		fields["notes"] = *details.Notes
	}
	if err := s.docs.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	log.Infof("[DocumentService] 文档已手动更新, DocumentID: %s", id)
	return s.docs.FindByID(ctx, id)
}

// Delete 删除文档记录，然后尽力删除原件与截图，对象删除失败只记录日志。
func (s *documentService) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}

	if s.store == nil {
		return nil
	}
	if doc.StoragePath != "" {
		if err := s.store.Remove(ctx, s.buckets.DocumentsBucket, doc.StoragePath); err != nil {
			log.Warnf("[DocumentService] 删除原始文件失败, Object: %s, Error: %v", doc.StoragePath, err)
		}
	}
	for _, key := range doc.Screenshots {
		if err := s.store.Remove(ctx, s.buckets.ScreenshotBucket, key); err != nil {
			log.Warnf("[DocumentService] 删除截图失败, Object: %s, Error: %v", key, err)
		}
	}
	log.Infof("[DocumentService] 文档已删除, DocumentID: %s", id)
	return nil
}

func (s *documentService) ScreenshotURL(key string) string {
	if s.store == nil || key == "" {
		return ""
	}
	return s.store.PublicURL(s.buckets.ScreenshotBucket, key)
}
