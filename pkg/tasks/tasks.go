// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// AnalysisTask represents a request to run CV analysis on a stored document.
type AnalysisTask struct {
	DocumentID  string    `json:"document_id"`
	RequestedAt time.Time `json:"requested_at"`
	// RequestID 用于在日志中串联 HTTP 请求与消费者处理。
	RequestID string `json:"request_id,omitempty"`
}
