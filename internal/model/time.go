package model

import (
	"time"
)

// LocalTime 在列表视图中按 "YYYY-MM-DD HH:MM:SS" 输出服务器本地时间，零值输出 null。
type LocalTime time.Time

const listTimeLayout = "2006-01-02 15:04:05"

func (t LocalTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	b := make([]byte, 0, len(listTimeLayout)+2)
	b = append(b, '"')
	b = tt.Local().AppendFormat(b, listTimeLayout)
	return append(b, '"'), nil
}
