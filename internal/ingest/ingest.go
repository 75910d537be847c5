package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
)

// PageViewStore defines store operations needed by Ingester.
type PageViewStore interface {
	InsertPageView(ctx context.Context, p *pageview.PageView) (int64, error)
}

// Recorder receives ingestion metrics. Implemented by internal/metrics.
type Recorder interface {
	PageViewIngested(d time.Duration)
	PageViewRejected(reason string)
}

// Rejection reasons passed to Recorder.PageViewRejected.
const (
	ReasonValidation = "validation"
	ReasonStorage    = "storage"
	ReasonUnknown    = "unknown"
)

// Ack acknowledges a stored page view.
type Ack struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ingester validates tracking payloads and appends them to the store.
// Each call is independent: there is no retry and no deduplication.
type Ingester struct {
	store    PageViewStore
	logger   zerolog.Logger
	recorder Recorder
	onInsert []func(pageview.PageView)
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger for the Ingester.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Ingester) { i.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(i *Ingester) { i.recorder = r }
}

// WithOnInsert registers a callback invoked after each successful insert.
// Callbacks run synchronously and must not block.
func WithOnInsert(fn func(pageview.PageView)) Option {
	return func(i *Ingester) { i.onInsert = append(i.onInsert, fn) }
}

// New creates a new Ingester.
func New(store PageViewStore, opts ...Option) *Ingester {
	i := &Ingester{
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Track validates p and appends it as one page view.
// Errors are *pageview.ValidationError, *pageview.StorageUnavailableError
// or *pageview.UnknownError.
func (i *Ingester) Track(ctx context.Context, p Payload) (Ack, error) {
	pv, err := p.PageView()
	if err != nil {
		i.rejected(ReasonValidation)
		return Ack{}, err
	}

	start := time.Now()
	if _, err := i.store.InsertPageView(ctx, pv); err != nil {
		return Ack{}, i.classify(ctx, err)
	}

	if i.recorder != nil {
		i.recorder.PageViewIngested(time.Since(start))
	}
	i.logger.Debug().
		Int64("id", pv.ID).
		Str("path", pv.Path).
		Msg("page view recorded")

	for _, fn := range i.onInsert {
		fn(*pv)
	}

	return Ack{ID: pv.ID, CreatedAt: pv.CreatedAt}, nil
}

// classify maps a store failure onto the error taxonomy.
func (i *Ingester) classify(ctx context.Context, err error) error {
	var ve *pageview.ValidationError
	if errors.As(err, &ve) {
		i.rejected(ReasonValidation)
		return ve
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		i.rejected(ReasonUnknown)
		i.logger.Warn().Err(err).Msg("page view insert aborted")
		return &pageview.UnknownError{Err: err}
	}

	i.rejected(ReasonStorage)
	i.logger.Error().Err(err).Msg("failed to insert page view")
	return &pageview.StorageUnavailableError{Op: "insert", Err: err}
}

func (i *Ingester) rejected(reason string) {
	if i.recorder != nil {
		i.recorder.PageViewRejected(reason)
	}
}
