// Package pdf 负责 PDF 的解析：页数、逐页文本、超链接注释以及页面截图。
//
// 结构与注释通过 pdfcpu 读取，文本通过 ledongthuc/pdf 提取，截图调用 poppler 的 pdftoppm。
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrPageRange 表示请求的页码超出文档范围。
var ErrPageRange = errors.New("page out of range")

// Document 是已解析的 PDF 句柄，可被多个 goroutine 并发使用。
type Document struct {
	ctx       *model.Context
	text      *lpdf.Reader
	pageCount int

	// 两个底层库都不保证并发安全，各自加锁。
	structMu sync.Mutex
	textMu   sync.Mutex
}

// Open 解析 PDF 字节流。
func Open(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, errors.New("empty pdf")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err := api.ReadAndValidate(bytes.NewReader(data), conf)
	if err != nil {
		// 校验失败时退回到只读取交叉引用表
		pctx, err = api.ReadContext(bytes.NewReader(data), conf)
		if err != nil {
			return nil, fmt.Errorf("pdfcpu read: %w", err)
		}
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("pdfcpu page count: %w", err)
	}

	tr, err := newTextReader(data)
	if err != nil {
		return nil, fmt.Errorf("text reader: %w", err)
	}

	return &Document{ctx: pctx, text: tr, pageCount: pctx.PageCount}, nil
}

// PageCount 返回文档页数。
func (d *Document) PageCount() int {
	return d.pageCount
}

func (d *Document) checkPage(n int) error {
	if n < 1 || n > d.pageCount {
		return fmt.Errorf("%w: %d of %d", ErrPageRange, n, d.pageCount)
	}
	return nil
}

// Text 返回第 n 页的文本。
func (d *Document) Text(ctx context.Context, n int) (string, error) {
	if err := d.checkPage(n); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.textMu.Lock()
	defer d.textMu.Unlock()
	return pageText(d.text, n)
}
