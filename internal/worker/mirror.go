// Package worker mirrors the primary record store into a secondary store,
// driven by record events from the message broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vansales/internal/amqp"
	"vansales/internal/core"
	applog "vansales/internal/log"
	"vansales/internal/metrics"
	"vansales/internal/store"
)

// Mirror copies collections from source to target. Every event re-copies the
// whole collection of its kind, so redelivered or reordered events converge
// on the same result.
type Mirror struct {
	source  store.Lister
	target  store.Replacer
	metrics *metrics.Metrics
	log     *applog.Logger
}

func NewMirror(source store.Lister, target store.Replacer, m *metrics.Metrics) *Mirror {
	return &Mirror{
		source:  source,
		target:  target,
		metrics: m,
		log:     applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentWorker}),
	}
}

// HandleRecordEvent processes a single record event from AMQP.
func (w *Mirror) HandleRecordEvent(ctx context.Context, evt amqp.RecordEvent) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	kind := evt.Kind

	w.log.InfoContext(ctx, "Processing record event",
		applog.FieldKind, kind.String(),
		applog.FieldOperation, evt.Op,
		applog.FieldRecordID, evt.ID)

	end := w.metrics.Track("mirror_" + kind.String())
	n, err := w.syncKind(ctx, kind)
	if err = end(err); err != nil {
		return err
	}

	w.log.InfoContext(ctx, "Collection mirrored", applog.FieldKind, kind.String(), applog.FieldRows, n)
	return nil
}

// SyncAll mirrors every collection. It runs at worker startup to recover from
// events lost while the worker was down. Failures for one kind do not stop
// the others.
func (w *Mirror) SyncAll(ctx context.Context) error {
	var errs []error
	synced := 0
	for _, kind := range core.Kinds() {
		n, err := w.syncKind(ctx, kind)
		if err != nil {
			w.log.ErrorContext(ctx, "Failed to mirror collection", applog.FieldKind, kind.String(), applog.FieldError, err)
			errs = append(errs, err)
			continue
		}
		synced += n
	}

	w.log.InfoContext(ctx, "Startup sync completed",
		"kinds", len(core.Kinds()),
		applog.FieldRows, synced,
		"errors", len(errs))
	return errors.Join(errs...)
}

func (w *Mirror) syncKind(ctx context.Context, kind core.Kind) (int, error) {
	recs, err := w.source.List(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("list %s from source: %w", kind, err)
	}
	if err := w.target.Replace(ctx, kind, recs); err != nil {
		return 0, fmt.Errorf("replace %s in target: %w", kind, err)
	}
	return len(recs), nil
}
