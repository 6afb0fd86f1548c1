// Package sanitize 从模型的自由文本输出中还原出一个 JSON 对象。
//
// 还原按固定顺序尝试多种策略，第一个成功的策略胜出。所有函数都是纯函数。
package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"cv-smart-go/internal/apperr"
)

var (
	fenceMarker  = regexp.MustCompile("```json\\s*|\\s*```")
	strayEscape  = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
	controlChars = regexp.MustCompile(`[\x00-\x1F]+`)
	fencedObject = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")

	curlyQuotes = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", "\"", "”", "\"",
	)

	errNoFence  = errors.New("no fenced object found")
	errNoObject = errors.New("no brace-delimited object found")
)

// Clean 去掉代码块标记、多余的反斜杠转义、控制字符，并把弯引号替换为直引号。
func Clean(s string) string {
	s = fenceMarker.ReplaceAllString(s, "")
	s = strayEscape.ReplaceAllString(s, "$1")
	s = controlChars.ReplaceAllString(s, "")
	s = curlyQuotes.Replace(s)
	return strings.TrimSpace(s)
}

// Strategy 尝试从原始文本中解析出一个 JSON 对象。
type Strategy func(raw string) (map[string]any, error)

// Chain 按顺序执行的策略列表。
type Chain []Strategy

// DefaultChain 依次尝试整体解析、代码块内对象、第一个花括号对象。
var DefaultChain = Chain{Direct, FencedBlock, FirstObject}

// Parse 依次执行策略，全部失败时返回带原文前 200 个字符的 ParseError。
func (c Chain) Parse(raw string) (map[string]any, error) {
	var errs []error
	for _, strategy := range c {
		obj, err := strategy(raw)
		if err == nil {
			return obj, nil
		}
		errs = append(errs, err)
	}
	return nil, apperr.NewParseError(raw, errors.Join(errs...))
}

// Parse 使用 DefaultChain 解析。
func Parse(raw string) (map[string]any, error) {
	return DefaultChain.Parse(raw)
}

// Decode 解析 raw 并把结果映射到 out 指向的结构体。
func Decode(raw string, out any) error {
	obj, err := Parse(raw)
	if err != nil {
		return err
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return apperr.NewParseError(raw, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return apperr.NewParseError(raw, fmt.Errorf("map onto %T: %w", out, err))
	}
	return nil
}

// Direct 清理整段文本后直接解析。
func Direct(raw string) (map[string]any, error) {
	return decodeObject(Clean(raw))
}

// FencedBlock 解析 ``` 或 ```json 代码块中的花括号对象。
func FencedBlock(raw string) (map[string]any, error) {
	m := fencedObject.FindStringSubmatch(raw)
	if m == nil {
		return nil, errNoFence
	}
	return decodeObject(Clean(m[1]))
}

// FirstObject 解析文本中第一个花括号包围的子串。
func FirstObject(raw string) (map[string]any, error) {
	candidate, ok := firstBraced(raw)
	if !ok {
		return nil, errNoObject
	}
	return decodeObject(Clean(candidate))
}

// firstBraced 从第一个 '{' 开始做括号配对，忽略字符串内部的括号。
// 未能闭合时退化为第一个 '{' 到最后一个 '}' 之间的内容。
func firstBraced(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("top-level value is not an object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after object")
	}
	return obj, nil
}
