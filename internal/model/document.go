// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Status 表示简历文档在分析状态机中的位置。
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusAnalyzing Status = "analyzing"
	StatusAnalyzed  Status = "analyzed"
	StatusError     Status = "error"
	// StatusProcessed 由人工编辑设置，不属于分析状态机。
	StatusProcessed Status = "processed"
)

// Document 定义了 cv_documents 表的 ORM 模型。
// 记录只在入库流程完整结束后一次性创建。
type Document struct {
	ID                  string                      `gorm:"type:char(36);primaryKey" json:"id"`
	Filename            string                      `gorm:"type:varchar(255);not null" json:"filename"`
	StoragePath         string                      `gorm:"type:varchar(512);not null" json:"storagePath"`
	Pages               datatypes.JSONSlice[Page]   `gorm:"type:json" json:"pages"`
	Screenshots         datatypes.JSONSlice[string] `gorm:"type:json" json:"screenshots"`
	Status              Status                      `gorm:"type:varchar(20);not null;default:'uploaded';index" json:"status"`
	AnalysisData        datatypes.JSON              `gorm:"type:json;default:null" json:"analysisData"`
	Notes               string                      `gorm:"type:text" json:"notes"`
	CandidateName       string                      `gorm:"type:varchar(255)" json:"candidateName"`
	Position            string                      `gorm:"type:varchar(255)" json:"position"`
	IdentityProvisional bool                        `gorm:"not null;default:false" json:"identityProvisional"`
	ErrorDetails        string                      `gorm:"type:text" json:"errorDetails,omitempty"`
	CreatedAt           time.Time                   `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt           time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "cv_documents"
}

// Page 是文档中的单页记录，以 JSON 形式存放在 Document.Pages 中。
type Page struct {
	PageNumber     int    `json:"pageNumber"`
	Text           string `json:"text"`
	Links          []Link `json:"links"`
	ScreenshotPath string `json:"screenshotPath"`
	Error          string `json:"error,omitempty"`
}

// Link 是页面上的超链接注释，Rect 为 [x1, y1, x2, y2]。
type Link struct {
	URL  string     `json:"url"`
	Rect [4]float64 `json:"rect"`
}

// Failed 报告该页在入库时是否出错。
func (p Page) Failed() bool {
	return p.Error != ""
}

// SortPages 按页码升序排列。
func SortPages(pages []Page) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
}

// HasText 报告是否至少有一页带有非空文本。
func (d *Document) HasText() bool {
	for _, p := range d.Pages {
		if p.Text != "" && !p.Failed() {
			return true
		}
	}
	return false
}

// DocumentSummary 是列表接口返回的精简视图。
type DocumentSummary struct {
	ID                  string    `json:"id"`
	Filename            string    `json:"filename"`
	Status              Status    `json:"status"`
	CandidateName       string    `json:"candidateName"`
	Position            string    `json:"position"`
	PageCount           int       `json:"pageCount"`
	IdentityProvisional bool      `json:"identityProvisional"`
	CreatedAt           LocalTime `json:"createdAt"`
}

// Summary 生成文档的列表视图。
func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:                  d.ID,
		Filename:            d.Filename,
		Status:              d.Status,
		CandidateName:       d.CandidateName,
		Position:            d.Position,
		PageCount:           len(d.Pages),
		IdentityProvisional: d.IdentityProvisional,
		CreatedAt:           LocalTime(d.CreatedAt),
	}
}
