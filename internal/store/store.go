package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/resilience"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	DocumentName string          `json:"document_name,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// PageKey identifies one cached provider call for a page image.
type PageKey struct {
	ImageHash string
	Provider  string
	Model     string
	Kind      string // classify, years, or extract:<statement>:<digest>
}

// FieldRow is one persisted Value_Year slot of a run.
type FieldRow struct {
	Field      string              `json:"field"`
	Source     model.StatementType `json:"source"`
	Slot       int                 `json:"slot"`
	Year       string              `json:"year"`
	Value      string              `json:"value"`
	Confidence float64             `json:"confidence"`
	PageNum    int                 `json:"page_num"`
}

// Store defines the persistence interface for document runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, doc model.Document) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Extracted values
	SaveResult(ctx context.Context, runID string, result *model.DocumentResult) error
	GetFields(ctx context.Context, runID string) ([]FieldRow, error)

	// Page result cache. GetCachedPage returns nil, nil on a miss.
	GetCachedPage(ctx context.Context, key PageKey) ([]byte, error)
	SetCachedPage(ctx context.Context, key PageKey, data []byte, ttl time.Duration) error
	DeleteExpiredPages(ctx context.Context) (int, error)

	// Dead letter queue of failed documents. DequeueDLQ returns only entries
	// that are due and have retries left.
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// resultStatus is the terminal status recorded with a run result.
func resultStatus(result *model.RunResult) model.RunStatus {
	if result != nil && result.Error != "" {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}

// fieldRows flattens a combined record into one row per populated slot.
func fieldRows(rec *model.CombinedRecord) []FieldRow {
	var rows []FieldRow
	for _, name := range rec.Fields() {
		e := rec.Entries[name]
		for i, s := range e.Slots {
			if s == nil {
				continue
			}
			rows = append(rows, FieldRow{
				Field:      e.Field,
				Source:     e.Source,
				Slot:       i,
				Year:       s.Year,
				Value:      s.Value.String(),
				Confidence: s.Confidence,
				PageNum:    s.PageNum,
			})
		}
	}
	return rows
}
