package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AlertDistributor interface {
	Distribute(ctx context.Context, alert domain.Alert)
}

type CollectorConfig struct {
	Workers       int
	HistoryLimit  int
	FetchAttempts int
	FetchBackoff  time.Duration
}

// CollectionReport summarizes one collection run.
type CollectionReport struct {
	Pairs       int
	Fetched     int
	Failed      int
	StoreErrors int
	Alerts      int
	Duplicates  int
	Errors      []string
	Duration    time.Duration
}

func (r CollectionReport) Summary() string {
	return fmt.Sprintf(
		"pairs=%d fetched=%d failed=%d store_errors=%d alerts=%d duplicates=%d duration=%s",
		r.Pairs, r.Fetched, r.Failed, r.StoreErrors, r.Alerts, r.Duplicates, r.Duration.Round(time.Millisecond),
	)
}

type Collector struct {
	store       domain.PriceStore
	source      domain.PriceSource
	emitter     *AlertEmitter
	distributor AlertDistributor
	cfg         CollectorConfig
	logger      *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	locks *pairLocks
}

func NewCollector(store domain.PriceStore, source domain.PriceSource, emitter *AlertEmitter, distributor AlertDistributor, cfg CollectorConfig, logger *zap.Logger) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = 30
	}
	if cfg.FetchAttempts < 1 {
		cfg.FetchAttempts = 1
	}
	return &Collector{
		store:       store,
		source:      source,
		emitter:     emitter,
		distributor: distributor,
		cfg:         cfg,
		logger:      logger,
		sleep:       sleepContext,
		now:         time.Now,
		locks:       newPairLocks(),
	}
}

// Collect fetches and evaluates every active (competitor, product) pair once. A failing pair never
// stops the others; the error is only non-nil when the pairs could not be listed or ctx ended.
func (c *Collector) Collect(ctx context.Context) (CollectionReport, error) {
	start := time.Now()
	watches, err := c.store.ListActiveCompetitorsWithProducts(ctx)
	if err != nil {
		return CollectionReport{}, fmt.Errorf("list active competitors: %w", err)
	}

	var pairs []domain.Pair
	for _, watch := range watches {
		pairs = append(pairs, watch.Pairs()...)
	}

	report := &reportBuilder{report: CollectionReport{Pairs: len(pairs)}}
	c.logger.Info("collection started", zap.Int("competitors", len(watches)), zap.Int("pairs", len(pairs)))

	var group errgroup.Group
	group.SetLimit(c.cfg.Workers)
	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			c.collectPair(ctx, pair, report)
			return nil
		})
	}
	_ = group.Wait()

	result := report.snapshot()
	result.Duration = time.Since(start)
	c.logger.Info(
		"collection finished",
		zap.String("summary", result.Summary()),
		zap.Int("pairs", result.Pairs),
		zap.Int("failed", result.Failed),
		zap.Int("alerts", result.Alerts),
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Collector) collectPair(ctx context.Context, pair domain.Pair, report *reportBuilder) {
	logger := c.logger.With(zap.Uint("product_id", pair.ProductID), zap.Uint("competitor_id", pair.CompetitorID))

	quote, err := c.fetchWithRetry(ctx, pair)
	if err != nil {
		logger.Warn("price fetch failed", zap.String("url", pair.SourceURL), zap.Error(err))
		report.fail(pair, err)
		return
	}
	report.fetched()

	alert, observationID, ok := c.record(ctx, pair, quote, logger, report)
	if !ok || alert == nil {
		return
	}

	stored, created, err := c.emitter.Emit(ctx, *alert, observationID)
	if err != nil {
		report.storeError(pair, err)
		return
	}
	if !created {
		report.duplicate()
		return
	}
	report.alert()
	c.distributor.Distribute(ctx, *stored)
}

// record appends the observation and evaluates it against the history read before the append. A
// failed history read still stores the observation but skips evaluation. The pair lock keeps
// concurrent runs from interleaving on the same series.
func (c *Collector) record(ctx context.Context, pair domain.Pair, quote domain.PriceQuote, logger *zap.Logger, report *reportBuilder) (*domain.Alert, uint, bool) {
	unlock := c.locks.lock(pair.ProductID, pair.CompetitorID)
	defer unlock()

	recent, historyErr := c.store.RecentObservations(ctx, pair.ProductID, pair.CompetitorID, c.cfg.HistoryLimit)
	if historyErr != nil {
		logger.Error("failed to read price history", zap.Error(historyErr))
		report.storeError(pair, historyErr)
	}

	observation := domain.PriceObservation{
		ProductID:    pair.ProductID,
		CompetitorID: pair.CompetitorID,
		Price:        quote.Price,
		Currency:     quote.Currency,
		SourceURL:    quote.URL,
		ObservedAt:   c.now().UTC(),
	}
	if err := c.store.AppendObservation(ctx, &observation); err != nil {
		logger.Error("failed to store observation", zap.Error(err))
		if historyErr == nil {
			report.storeError(pair, err)
		}
		return nil, 0, false
	}
	// Without history the quote cannot be judged; it is still kept for the next run.
	if historyErr != nil {
		return nil, observation.ID, false
	}

	var previous *decimal.Decimal
	history := make([]decimal.Decimal, 0, len(recent))
	for _, item := range recent {
		history = append(history, item.Price)
	}
	if len(recent) > 0 {
		previous = &recent[0].Price
	}

	return EvaluatePriceChange(pair, previous, quote.Price, history), observation.ID, true
}

func (c *Collector) fetchWithRetry(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	backoff := c.cfg.FetchBackoff
	for attempt := 1; ; attempt++ {
		quote, err := c.source.FetchPrice(ctx, pair)
		if err == nil {
			return quote, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.PriceQuote{}, ctxErr
		}
		if !domain.IsTemporaryFetch(err) {
			return domain.PriceQuote{}, err
		}
		if attempt >= c.cfg.FetchAttempts {
			return domain.PriceQuote{}, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := max(backoff, domain.FetchRetryAfter(err))
		c.logger.Debug(
			"retrying price fetch",
			zap.Uint("product_id", pair.ProductID),
			zap.Uint("competitor_id", pair.CompetitorID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return domain.PriceQuote{}, err
		}
		backoff *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type pairKey struct {
	productID    uint
	competitorID uint
}

type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*sync.Mutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pairKey]*sync.Mutex)}
}

func (l *pairLocks) lock(productID, competitorID uint) func() {
	key := pairKey{productID: productID, competitorID: competitorID}
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

type reportBuilder struct {
	mu     sync.Mutex
	report CollectionReport
}

func (b *reportBuilder) fetched() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Fetched++
}

func (b *reportBuilder) alert() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Alerts++
}

func (b *reportBuilder) duplicate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Duplicates++
}

func (b *reportBuilder) fail(pair domain.Pair, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Failed++
	b.report.Errors = append(b.report.Errors, pairError(pair, err))
}

func (b *reportBuilder) storeError(pair domain.Pair, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.StoreErrors++
	b.report.Errors = append(b.report.Errors, pairError(pair, err))
}

func (b *reportBuilder) snapshot() CollectionReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	report := b.report
	report.Errors = append([]string(nil), b.report.Errors...)
	return report
}

func pairError(pair domain.Pair, err error) string {
	return fmt.Sprintf("product %d competitor %d: %v", pair.ProductID, pair.CompetitorID, err)
}
