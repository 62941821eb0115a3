package control

import (
	"time"

	"earshot/internal/vad"
)

type Request struct {
	Op string `json:"op"`
}

type Status struct {
	Running     bool         `json:"running"`
	UptimeSec   float64      `json:"uptime_sec"`
	Source      string       `json:"source"`
	Policy      string       `json:"policy"`
	Segmenter   vad.Stats    `json:"segmenter"`
	Pending     int          `json:"pending"`
	Completed   int64        `json:"completed"`
	Failed      int64        `json:"failed"`
	LastHeard   *time.Time   `json:"last_heard,omitempty"`
	Transcripts []Transcript `json:"transcripts"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Transcript struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
