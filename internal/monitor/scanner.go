package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sizewatch/internal/progress"
)

const separator = "--------------------------------"

// Scanner checks one watched item against an open session.
type Scanner struct {
	extractors Extractors
	notifier   Notifier
	limiter    Limiter
	emitter    progress.Emitter
	clock      Clock
	logger     *zap.Logger
}

// ScanItem runs the per-item steps: skip flagged items, navigate, extract,
// and alert on a match. Failures are logged and reported as ResultError
// without touching the alert state.
func (s *Scanner) ScanItem(
	ctx context.Context,
	sess Session,
	item WatchedItem,
	cfg RunConfig,
	alerts *AlertState,
	runID [16]byte,
) ItemResult {
	if alerts.Alerted(item.URL) {
		s.logger.Info("item already flagged, skipping", zap.String("url", item.URL))
		s.emitItem(runID, item, ResultSkipped, 0, "")
		return ResultSkipped
	}

	s.logger.Info(separator)
	s.logger.Info("checking url", zap.String("url", item.URL), zap.String("store", string(item.Store)))

	start := s.clock.Now()
	size, found, err := s.check(ctx, sess, item, cfg.Sizes)
	dur := s.clock.Now().Sub(start)
	if dur < 0 {
		dur = 0
	}

	switch {
	case err != nil:
		s.logger.Warn("error with url", zap.String("url", item.URL), zap.Error(err))
		s.emitItem(runID, item, ResultError, dur, err.Error())
		return ResultError
	case !found:
		s.logger.Info("checked - no stock", zap.String("url", item.URL))
		s.emitItem(runID, item, ResultNoStock, dur, "")
		return ResultNoStock
	}

	message := AlertMessage(size, item.URL)
	s.logger.Info("UYARI: size in stock",
		zap.String("url", item.URL),
		zap.String("size", size),
		zap.String("alert", message),
	)
	// Each branch already logged its own failure.
	_ = s.notifier.Notify(ctx, message, cfg.Credentials)
	alerts.MarkAlerted(item.URL)

	s.emitItem(runID, item, ResultInStock, dur, "")
	s.emitter.Emit(progress.Event{
		RunID: runID,
		TS:    s.clock.Now(),
		Stage: progress.StageAlert,
		Store: string(item.Store),
		URL:   item.URL,
		Size:  size,
	})
	return ResultInStock
}

func (s *Scanner) check(ctx context.Context, sess Session, item WatchedItem, sizes SizeSet) (string, bool, error) {
	extractor, ok := s.extractors[item.Store]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrNoExtractor, item.Store)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, item.URL); err != nil {
			return "", false, fmt.Errorf("politeness wait: %w", err)
		}
	}
	if err := sess.Navigate(ctx, item.URL); err != nil {
		return "", false, fmt.Errorf("navigate: %w", err)
	}
	size, found, err := extractor.Extract(ctx, sess, sizes)
	if err != nil {
		return "", false, fmt.Errorf("extract %s: %w", item.Store, err)
	}
	return size, found, nil
}

func (s *Scanner) emitItem(runID [16]byte, item WatchedItem, result ItemResult, dur time.Duration, note string) {
	s.emitter.Emit(progress.Event{
		RunID:  runID,
		TS:     s.clock.Now(),
		Stage:  progress.StageItemChecked,
		Store:  string(item.Store),
		URL:    item.URL,
		Result: string(result),
		Dur:    dur,
		Note:   note,
	})
}
