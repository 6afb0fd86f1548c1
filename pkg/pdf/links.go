package pdf

import (
	"context"
	"fmt"
	"strings"

	"cv-smart-go/internal/model"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Links 返回第 n 页上 Subtype 为 Link 且带有非空 URI 的注释。
func (d *Document) Links(ctx context.Context, n int) ([]model.Link, error) {
	if err := d.checkPage(n); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.structMu.Lock()
	defer d.structMu.Unlock()

	pageDict, _, _, err := d.ctx.PageDict(n, false)
	if err != nil {
		return nil, fmt.Errorf("page dict %d: %w", n, err)
	}
	links := []model.Link{}
	if pageDict == nil {
		return links, nil
	}
	annotsObj, found := pageDict.Find("Annots")
	if !found || annotsObj == nil {
		return links, nil
	}
	annots, err := d.ctx.DereferenceArray(annotsObj)
	if err != nil {
		return nil, fmt.Errorf("annots page %d: %w", n, err)
	}

	for _, obj := range annots {
		annot, err := d.ctx.DereferenceDict(obj)
		if err != nil || annot == nil {
			continue
		}
		if st := annot.NameEntry("Subtype"); st == nil || *st != "Link" {
			continue
		}
		uri := d.linkURI(annot)
		if uri == "" {
			continue
		}
		links = append(links, model.Link{URL: uri, Rect: d.rect(annot)})
	}
	return links, nil
}

// linkURI 读取 /A 动作字典中的 /URI。
func (d *Document) linkURI(annot types.Dict) string {
	actionObj, found := annot.Find("A")
	if !found {
		return ""
	}
	action, err := d.ctx.DereferenceDict(actionObj)
	if err != nil || action == nil {
		return ""
	}
	uriObj, found := action.Find("URI")
	if !found {
		return ""
	}
	o, err := d.ctx.Dereference(uriObj)
	if err != nil {
		return ""
	}
	var s string
	switch v := o.(type) {
	case types.StringLiteral:
		s, err = types.StringLiteralToString(v)
	case types.HexLiteral:
		s, err = types.HexLiteralToString(v)
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (d *Document) rect(annot types.Dict) [4]float64 {
	var r [4]float64
	rectObj, found := annot.Find("Rect")
	if !found {
		return r
	}
	arr, err := d.ctx.DereferenceArray(rectObj)
	if err != nil {
		return r
	}
	for i := 0; i < len(arr) && i < 4; i++ {
		if f, err := d.ctx.DereferenceNumber(arr[i]); err == nil {
			r[i] = f
		}
	}
	return r
}
