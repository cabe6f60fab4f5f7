package models

const (
	// DateLayout is the wire format of calendar dates.
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format of slot times (zero-padded, 24h).
	ClockLayout = "15:04"
	// MonthLayout identifies a calendar month in queries.
	MonthLayout = "2006-01"
)

// DefaultTimezone is the operational timezone injected into every availability
// and submission request of this deployment.
const DefaultTimezone = "America/Sao_Paulo"

const (
	// EagerWindowStart and EagerWindowEnd cover today and tomorrow.
	EagerWindowStart = 0
	EagerWindowEnd   = 1

	// LazyWindowStart and LazyWindowEnd cover the extended calendar.
	LazyWindowStart = 0
	LazyWindowEnd   = 31

	// DefaultSessionTTL is how long an idle booking session lives, in seconds.
	DefaultSessionTTL = 30 * 60

	// RateLimitMessages is the number of bot messages allowed per window.
	RateLimitMessages = 20

	// RateLimitWindow is the bot rate limit window, in seconds.
	RateLimitWindow = 60
)

const (
	LabelToday    = "Hoje"
	LabelTomorrow = "Amanhã"
)

const (
	SubmissionSucceeded = "succeeded"
	SubmissionFailed    = "failed"
)

// ParseModeHTML is the Telegram parse mode used for formatted bot messages.
const ParseModeHTML = "HTML"
