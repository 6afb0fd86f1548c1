// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/model"

	"gorm.io/gorm"
)

// Fields 是一次部分更新的列名到值的映射，值为 nil 时写入 NULL。
type Fields map[string]interface{}

// DocumentRepository 接口定义了简历文档的持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, id string, fields Fields) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	// FindAll 按 created_at 倒序返回全部文档。
	FindAll(ctx context.Context) ([]model.Document, error)
	Delete(ctx context.Context, id string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中插入一条新的文档记录。
func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return apperr.Wrap(apperr.Database, "repository.Create", err)
	}
	return nil
}

// Update 按列更新文档，只写入 fields 中出现的列。
func (r *documentRepository) Update(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}(fields))
	if res.Error != nil {
		return apperr.Wrapf(apperr.Database, "repository.Update", res.Error, "id=%s", id)
	}
	return nil
}

// FindByID 根据 ID 检索文档。
func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrapf(apperr.NotFound, "repository.FindByID", err, "id=%s", id)
	}
	if err != nil {
		return nil, apperr.Wrapf(apperr.Database, "repository.FindByID", err, "id=%s", id)
	}
	return &doc, nil
}

func (r *documentRepository) FindAll(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&docs).Error; err != nil {
		return nil, apperr.Wrap(apperr.Database, "repository.FindAll", err)
	}
	return docs, nil
}

// Delete 删除文档记录，记录不存在时返回 NotFound。
func (r *documentRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{})
	if res.Error != nil {
		return apperr.Wrapf(apperr.Database, "repository.Delete", res.Error, "id=%s", id)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "repository.Delete", "document "+id+" not found")
	}
	return nil
}
