package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// InvoiceRecoverer finishes invoices whose credit landed but whose status flip
// did not. usecase.InvoiceUseCase satisfies it.
type InvoiceRecoverer interface {
	Recover(ctx context.Context) (int, error)
}

// InvoiceReconciler runs Recover once at start and then on every tick.
type InvoiceReconciler struct {
	uc       InvoiceRecoverer
	interval time.Duration
	log      *zerolog.Logger
}

func NewInvoiceReconciler(uc InvoiceRecoverer, interval time.Duration, logger *zerolog.Logger) *InvoiceReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &InvoiceReconciler{uc: uc, interval: interval, log: logger}
}

// Start blocks until ctx is done.
func (w *InvoiceReconciler) Start(ctx context.Context) {
	w.tick(ctx)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *InvoiceReconciler) tick(ctx context.Context) {
	n, err := w.uc.Recover(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("invoice-reconciler: recover failed")
		}
		return
	}
	if n > 0 {
		w.log.Info().Int("recovered", n).Msg("invoice-reconciler: finished interrupted confirmations")
	}
}
