// Package apperr 定义了应用内统一使用的错误分类。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 标识错误所属的类别，handler 根据它决定 HTTP 状态码。
type Kind string

const (
	Validation Kind = "validation"
	Extraction Kind = "extraction"
	Upload     Kind = "upload"
	Parse      Kind = "parse"
	Database   Kind = "database"
	NotFound   Kind = "not_found"
	Conflict   Kind = "conflict"
)

// Error 是带分类的应用错误。
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建一个没有底层错误的应用错误。
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap 用分类包装 err，err 为 nil 时返回 nil。
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf 与 Wrap 相同，额外附带格式化的描述。
func Wrapf(kind Kind, op string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误链中第一个应用错误的分类，没有则返回空字符串。
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind 判断错误链中是否包含指定分类的应用错误。
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ParseError 表示模型输出无法被还原为 JSON 对象。
type ParseError struct {
	// Snippet 是原始输出的前 200 个字符。
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return "Could not parse response as JSON. Raw response: " + e.Snippet
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{parseSentinel}
	}
	return []error{parseSentinel, e.Err}
}

var parseSentinel = New(Parse, "", "unparseable model response")

// NewParseError 截取 raw 的前 200 个字符构造 ParseError。
func NewParseError(raw string, err error) *ParseError {
	r := []rune(raw)
	if len(r) > 200 {
		r = r[:200]
	}
	return &ParseError{Snippet: string(r), Err: err}
}
