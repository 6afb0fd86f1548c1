package pipeline

import (
	"context"

	"cv-smart-go/pkg/pdf"
)

// PDFParser 用 pkg/pdf 实现 Parser。
type PDFParser struct{}

func (PDFParser) Parse(data []byte) (PageSource, error) {
	doc, err := pdf.Open(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// PDFRasterizer 用 pdftoppm 渲染器实现 Rasterizer。
type PDFRasterizer struct {
	Renderer *pdf.Renderer
}

func (r PDFRasterizer) Acquire(ctx context.Context, data []byte) (RenderSession, error) {
	ws, err := r.Renderer.Acquire(ctx, data)
	if err != nil {
		return nil, err
	}
	return ws, nil
}
