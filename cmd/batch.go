package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/statement-cli/internal/export"
	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/resilience"
)

var (
	batchLimit    int
	batchOutput   string
	batchFormat   string
	batchTemplate string
	batchUpload   bool
	batchRetry    bool
	batchMaxRetry int
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Extract every PDF in a directory",
	Long: `Processes each *.pdf in dir, running up to pipeline.max_documents documents at once. A failed document is logged and does not stop the batch.

When a store is configured, failed documents go to the dead letter queue. --retry-failed reprocesses the queued documents whose failure was transient and whose retry is due, instead of reading a directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, err := export.ParseFormat(batchFormat)
		if err != nil {
			return err
		}
		if !batchRetry && len(args) == 0 {
			return eris.New("batch: a directory is required unless --retry-failed is set")
		}

		env, err := initPipeline(ctx, envOptions{
			templatePath: batchTemplate,
			withStorage:  batchUpload,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		var dlq *deadLetters
		if env.Store != nil {
			dlq = newDeadLetters(env.Store, resilience.RetryFromConfig(cfg.Retry), batchMaxRetry)
		}

		var docs []string
		if batchRetry {
			if dlq == nil {
				return eris.New("batch: --retry-failed requires store.driver sqlite or postgres")
			}
			docs, err = dlq.load(ctx, batchLimit)
		} else {
			docs, err = discoverDocuments(args[0])
		}
		if err != nil {
			return err
		}

		sum, err := processBatch(ctx, docs, batchLimit, cfg.Pipeline.MaxDocuments, dlq.wrap(func(ctx context.Context, path string) (*model.DocumentResult, error) {
			result, err := env.Pipeline.Run(ctx, path)
			if err != nil {
				return nil, err
			}
			if _, _, err := writeResult(ctx, env, result, batchOutput, format); err != nil {
				return result, err
			}
			return result, nil
		}))
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Processed %d documents: %d succeeded, %d failed\n", sum.Total, sum.Succeeded, sum.Failed)
		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d documents failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to process (0 = all)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "out", "output directory")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "csv", "output format: csv, xlsx or json")
	batchCmd.Flags().StringVar(&batchTemplate, "template", "", "field template YAML (default: built in)")
	batchCmd.Flags().BoolVar(&batchUpload, "upload", false, "upload outputs to configured artifact storage")
	batchCmd.Flags().BoolVar(&batchRetry, "retry-failed", false, "retry transient failures from the dead letter queue instead of reading dir")
	batchCmd.Flags().IntVar(&batchMaxRetry, "max-retries", resilience.DefaultDLQMaxRetries, "retries allowed for a dead-lettered document")
	rootCmd.AddCommand(batchCmd)
}

// discoverDocuments returns the PDFs directly inside dir, sorted by name.
func discoverDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", dir)
	}
	var docs []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		docs = append(docs, filepath.Join(dir, e.Name()))
	}
	sort.Strings(docs)
	return docs, nil
}

// documentFunc is the callback signature for processing one document.
type documentFunc func(ctx context.Context, path string) (*model.DocumentResult, error)

// batchSummary counts batch outcomes.
type batchSummary struct {
	Total     int
	Succeeded int
	Failed    int
}

// processBatch applies limit, then processes documents concurrently using fn.
// Individual failures are counted, never returned.
func processBatch(ctx context.Context, docs []string, limit, concurrency int, fn documentFunc) (batchSummary, error) {
	if len(docs) == 0 {
		zap.L().Info("no documents found")
		return batchSummary{}, nil
	}

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, path := range docs {
		g.Go(func() error {
			log := zap.L().With(zap.String("document", filepath.Base(path)))

			result, err := fn(gctx, path)
			if err != nil {
				failed.Add(1)
				log.Error("document failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			if result != nil {
				log.Info("document complete",
					zap.String("run_id", result.RunID),
					zap.Int("fields_found", result.Summarize().FieldsFound),
					zap.Int("errors", len(result.Errors)),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch processing")
	}

	sum := batchSummary{
		Total:     len(docs),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	zap.L().Info("batch complete",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// dlqStore is the slice of store.Store the dead letter tracker needs.
type dlqStore interface {
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
}

// deadLetters records batch outcomes in the dead letter queue. Failures are
// enqueued, or have their retry count bumped when they came from the queue.
// Successes clear any queued entry for the document.
type deadLetters struct {
	st         dlqStore
	retry      resilience.RetryConfig
	maxRetries int
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]resilience.DLQEntry // by document path
}

func newDeadLetters(st dlqStore, retry resilience.RetryConfig, maxRetries int) *deadLetters {
	return &deadLetters{
		st:         st,
		retry:      retry,
		maxRetries: maxRetries,
		now:        time.Now,
		pending:    make(map[string]resilience.DLQEntry),
	}
}

// dlqID keys queue entries by absolute document path so a document that
// fails again updates its entry.
func dlqID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}

// load dequeues due transient entries and returns their document paths.
func (d *deadLetters) load(ctx context.Context, limit int) ([]string, error) {
	entries, err := d.st.DequeueDLQ(ctx, resilience.DLQFilter{
		ErrorType: resilience.ErrorTypeTransient,
		Limit:     limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "batch: load dead letter queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	docs := make([]string, 0, len(entries))
	for _, e := range entries {
		d.pending[e.Document.Path] = e
		docs = append(docs, e.Document.Path)
	}
	zap.L().Info("batch: retrying dead-lettered documents", zap.Int("documents", len(docs)))
	return docs, nil
}

// wrap records the outcome of fn for every document. A nil tracker returns
// fn unchanged.
func (d *deadLetters) wrap(fn documentFunc) documentFunc {
	if d == nil {
		return fn
	}
	return func(ctx context.Context, path string) (*model.DocumentResult, error) {
		result, err := fn(ctx, path)
		d.record(ctx, path, err)
		return result, err
	}
}

func (d *deadLetters) record(ctx context.Context, path string, runErr error) {
	d.mu.Lock()
	entry, retrying := d.pending[path]
	d.mu.Unlock()

	id := entry.ID
	if !retrying {
		id = dlqID(path)
	}

	var err error
	switch {
	case runErr == nil:
		err = d.st.RemoveDLQ(ctx, id)
	case retrying:
		next := d.now().Add(resilience.DLQBackoff(entry.RetryCount+1, d.retry))
		err = d.st.IncrementDLQRetry(ctx, id, next, runErr.Error())
	default:
		doc := model.Document{Path: path, Name: filepath.Base(path)}
		if abs, absErr := filepath.Abs(path); absErr == nil {
			doc.Path = abs
		}
		e := resilience.NewDLQEntry(doc, runErr, d.maxRetries, d.retry, d.now())
		e.ID = id
		err = d.st.EnqueueDLQ(ctx, e)
		if err == nil {
			zap.L().Info("batch: document dead-lettered",
				zap.String("document", doc.Name),
				zap.String("error_type", e.ErrorType),
				zap.Time("next_retry_at", e.NextRetryAt),
			)
		}
	}
	if err != nil {
		zap.L().Warn("batch: dead letter queue update failed",
			zap.String("document", filepath.Base(path)),
			zap.Error(err),
		)
	}
}
