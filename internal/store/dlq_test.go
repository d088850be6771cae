package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-cli/internal/resilience"
)

func dlqEntry(id, name, errorType string, retryCount int, nextRetryAt time.Time) resilience.DLQEntry {
	now := time.Now().UTC()
	return resilience.DLQEntry{
		ID:           id,
		Document:     testDocument(name),
		Error:        "anthropic: status 529 overloaded",
		ErrorType:    errorType,
		RetryCount:   retryCount,
		MaxRetries:   3,
		NextRetryAt:  nextRetryAt,
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

func TestSQLite_DLQ_EnqueueAndDequeue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-1", "acme.pdf", "transient", 0, time.Now().Add(-time.Minute))))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-1", entries[0].ID)
	assert.Equal(t, "acme.pdf", entries[0].Document.Name)
	assert.Equal(t, "/data/acme.pdf", entries[0].Document.Path)
	assert.Equal(t, "transient", entries[0].ErrorType)
	assert.Equal(t, 0, entries[0].RetryCount)
	assert.Equal(t, 3, entries[0].MaxRetries)

	n, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_DLQ_DequeueFiltersErrorType(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-t", "t.pdf", "transient", 0, past)))
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-p", "p.pdf", "permanent", 0, past)))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-t", entries[0].ID)
}

func TestSQLite_DLQ_DequeueSkipsNotDueAndExhausted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-future", "future.pdf", "transient", 0, time.Now().Add(time.Hour))))
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-exhausted", "exhausted.pdf", "transient", 3, time.Now().Add(-time.Minute))))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_EnqueueUpserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-1", "acme.pdf", "transient", 2, past)))

	again := dlqEntry("dlq-1", "acme.pdf", "permanent", 0, past)
	again.Error = "render: no pages"
	require.NoError(t, st.EnqueueDLQ(ctx, again))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "permanent", entries[0].ErrorType)
	assert.Equal(t, "render: no pages", entries[0].Error)
	assert.Equal(t, 0, entries[0].RetryCount)
}

func TestSQLite_DLQ_IncrementRetryAndRemove(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, dlqEntry("dlq-inc", "inc.pdf", "transient", 0, time.Now().Add(-time.Minute))))

	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-inc", time.Now().Add(5*time.Minute), "second error"))
	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries, "entry should not be eligible yet")

	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-inc", time.Now().Add(-time.Second), "third error"))
	entries, err = st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].RetryCount)
	assert.Equal(t, "third error", entries[0].Error)

	require.NoError(t, st.RemoveDLQ(ctx, "dlq-inc"))
	n, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_DLQ_IncrementRetry_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.IncrementDLQRetry(context.Background(), "missing", time.Now(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_EnqueueDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	entry := dlqEntry("", "acme.pdf", "transient", 0, time.Now())
	mock.ExpectExec(`INSERT INTO dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), entry.Error, "transient", 0, 3,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnqueueDLQ(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DequeueDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	docJSON, _ := json.Marshal(testDocument("acme.pdf"))
	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)SELECT id, document, error, error_type.+FROM dead_letter_queue\s+WHERE next_retry_at <= now\(\) AND retry_count < max_retries AND error_type = \$1 ORDER BY next_retry_at ASC LIMIT \$2`).
		WithArgs("transient", 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "document", "error", "error_type", "retry_count", "max_retries", "next_retry_at", "created_at", "last_failed_at"}).
			AddRow("dlq-1", docJSON, "timeout", "transient", 1, 3, now, now, now))

	entries, err := s.DequeueDLQ(context.Background(), resilience.DLQFilter{ErrorType: "transient", Limit: 5})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme.pdf", entries[0].Document.Name)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementDLQRetry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), "boom", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.IncrementDLQRetry(context.Background(), "missing", time.Now(), "boom")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RemoveAndCountDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM dead_letter_queue WHERE id = \$1`).
		WithArgs("dlq-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dead_letter_queue`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	require.NoError(t, s.RemoveDLQ(context.Background(), "dlq-1"))
	n, err := s.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
