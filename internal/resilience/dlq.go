package resilience

import (
	"time"

	"github.com/sells-group/statement-cli/internal/model"
)

// Error types recorded on dead letter entries.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DefaultDLQMaxRetries bounds how often a dead-lettered document is retried.
const DefaultDLQMaxRetries = 3

// DLQEntry represents a document whose extraction failed and can be retried later.
type DLQEntry struct {
	ID           string         `json:"id"`
	Document     model.Document `json:"document"`
	Error        string         `json:"error"`
	ErrorType    string         `json:"error_type"` // "transient" or "permanent"
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	NextRetryAt  time.Time      `json:"next_retry_at"`
	CreatedAt    time.Time      `json:"created_at"`
	LastFailedAt time.Time      `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// NewDLQEntry records a failed document. The first retry becomes due after
// one initial backoff of cfg.
func NewDLQEntry(doc model.Document, err error, maxRetries int, cfg RetryConfig, now time.Time) DLQEntry {
	if maxRetries <= 0 {
		maxRetries = DefaultDLQMaxRetries
	}
	e := DLQEntry{
		Document:     doc,
		ErrorType:    ClassifyError(err),
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(DLQBackoff(0, cfg)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// DLQBackoff returns the wait before retry number retryCount+1 of a
// dead-lettered document.
func DLQBackoff(retryCount int, cfg RetryConfig) time.Duration {
	return backoff(retryCount, applyDefaults(cfg))
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}
