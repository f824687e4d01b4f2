package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PaymentReconciler periodically re-arms pending checks the poller lost track of,
// e.g. checks recorded by an instance that has since exited.
type PaymentReconciler struct {
	poller   *PaymentPoller
	interval time.Duration
	log      *zerolog.Logger
}

func NewPaymentReconciler(poller *PaymentPoller, interval time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{poller: poller, interval: interval, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := w.poller.Resume(ctx); err != nil {
				w.log.Error().Err(err).Msg("list pending checks failed")
			}
		}
	}
}
