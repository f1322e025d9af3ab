package refdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/quadrel/pecbridge/internal/observability/metrics"
	"go.uber.org/zap"
)

var ErrFeedNotFound = errors.New("reference_feed_not_found")

// Fetcher reads the raw reference feed text from its backing location.
type Fetcher interface {
	FetchText(ctx context.Context) (string, error)
}

// Loader fetches and parses the reference feed on every call. A cache in
// front of the fetcher (see Cache) keeps hot invocations off the blob read;
// callers needing more than that must cache the Dataset themselves.
type Loader struct {
	fetcher Fetcher
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewLoader(fetcher Fetcher, log *zap.Logger, m *metrics.Metrics) *Loader {
	return &Loader{
		fetcher: fetcher,
		log:     log.Named("refdata.loader"),
		metrics: m,
	}
}

func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	raw, err := l.fetcher.FetchText(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch reference feed: %w", err)
	}

	ds, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse reference feed: %w", err)
	}

	if ds.Skipped() > 0 {
		l.log.Warn("reference feed rows skipped",
			zap.Int("skipped", ds.Skipped()),
			zap.Int("loaded", ds.Len()),
		)
	}
	l.metrics.RecordReferenceLoad(ctx, "feed")

	return ds, nil
}
