package pdf

import (
	"bytes"
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

func newTextReader(data []byte) (r *lpdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	return lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// pageText 读取页面的文本片段并按出现顺序拼接，空白统一折叠为单个空格。
// ledongthuc/pdf 遇到损坏的内容流会 panic，这里转换为错误。
func pageText(r *lpdf.Reader, n int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extract text from page %d: %v", n, p)
		}
	}()

	page := r.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d not found", n)
	}
	raw, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract text from page %d: %w", n, err)
	}
	return CollapseSpaces(raw), nil
}

// CollapseSpaces 把所有连续空白替换为单个空格并去掉首尾空白。
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
