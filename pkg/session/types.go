// Package session keeps the per-session model handle and the append-only log
// of per-call token measurements.
package session

import (
	"time"
)

// CallStats is the measurement recorded for one model call.
type CallStats struct {
	NodeID               string    `json:"node_id" firestore:"node_id"`
	VisionTokens         int       `json:"vision_tokens" firestore:"vision_tokens"`
	TextTokens           int       `json:"text_tokens" firestore:"text_tokens"`
	TextEquivalentTokens int       `json:"text_equivalent_tokens" firestore:"text_equivalent_tokens"`
	TokenSavings         int       `json:"token_savings" firestore:"token_savings"`
	ImageWidth           int       `json:"image_width" firestore:"image_width"`
	ImageHeight          int       `json:"image_height" firestore:"image_height"`
	ContextMessages      int       `json:"context_messages" firestore:"context_messages"`
	Timestamp            time.Time `json:"timestamp" firestore:"timestamp"`
}

// Summary aggregates a session's stats log.
type Summary struct {
	SessionID                 string      `json:"session_id"`
	TotalAPICalls             int         `json:"total_api_calls"`
	TotalVisionTokens         int         `json:"total_vision_tokens"`
	TotalTextTokens           int         `json:"total_text_tokens"`
	TotalTextEquivalentTokens int         `json:"total_text_equivalent_tokens"`
	TotalTokenSavings         int         `json:"total_token_savings"`
	AverageSavingsPerCall     float64     `json:"average_savings_per_call"`
	EstimatedSavingsUSD       float64     `json:"estimated_savings_usd"`
	Calls                     []CallStats `json:"calls"`
}

// Summarize totals calls. A session without calls yields a zeroed summary
// with an empty (non-nil) Calls slice.
func Summarize(sessionID string, calls []CallStats) Summary {
	s := Summary{
		SessionID: sessionID,
		Calls:     make([]CallStats, 0, len(calls)),
	}
	for _, c := range calls {
		s.TotalAPICalls++
		s.TotalVisionTokens += c.VisionTokens
		s.TotalTextTokens += c.TextTokens
		s.TotalTextEquivalentTokens += c.TextEquivalentTokens
		s.TotalTokenSavings += c.TokenSavings
		s.Calls = append(s.Calls, c)
	}
	if s.TotalAPICalls > 0 {
		s.AverageSavingsPerCall = float64(s.TotalTokenSavings) / float64(s.TotalAPICalls)
	}
	return s
}
