package domain

// ActionClass groups requests that share one rate-limit counter.
type ActionClass string

const (
	ActionClassMessage  ActionClass = "message"
	ActionClassCallback ActionClass = "callback"
	ActionClassCommand  ActionClass = "command"
)

// DefaultRateLimit is the number of requests allowed per user and action class per window.
const DefaultRateLimit = 30

// RateLimitResult is the outcome of one rate-limit check.
type RateLimitResult struct {
	Allowed   bool  `json:"allowed"`
	Current   int64 `json:"current"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Banned    bool  `json:"banned"`
}
