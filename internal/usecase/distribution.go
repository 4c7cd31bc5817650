package usecase

import (
	"context"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AlertSink delivers a stored alert to one downstream channel.
type AlertSink interface {
	Name() string
	Deliver(ctx context.Context, alert domain.Alert) error
}

type Distributor struct {
	sinks   []AlertSink
	timeout time.Duration
	logger  *zap.Logger
}

func NewDistributor(timeout time.Duration, logger *zap.Logger, sinks ...AlertSink) *Distributor {
	return &Distributor{sinks: sinks, timeout: timeout, logger: logger}
}

// Distribute hands alert to every sink concurrently and waits for all of them. Sink failures are
// logged and never reach the caller or the other sinks.
func (d *Distributor) Distribute(ctx context.Context, alert domain.Alert) {
	var group errgroup.Group
	for _, sink := range d.sinks {
		group.Go(func() error {
			d.deliver(ctx, sink, alert)
			return nil
		})
	}
	_ = group.Wait()
}

func (d *Distributor) deliver(ctx context.Context, sink AlertSink, alert domain.Alert) {
	sinkCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sinkCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("alert sink panicked", zap.String("sink", sink.Name()), zap.Uint("alert_id", alert.ID), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := sink.Deliver(sinkCtx, alert); err != nil {
		d.logger.Warn(
			"alert sink failed",
			zap.String("sink", sink.Name()),
			zap.Uint("alert_id", alert.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("alert sink delivered", zap.String("sink", sink.Name()), zap.Uint("alert_id", alert.ID), zap.Duration("duration", time.Since(start)))
}
