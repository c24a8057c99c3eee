package journal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DAOsign/daosign-go/internal/submitter"
)

// Recorder writes submitter transitions to a Store. Store errors are logged, never returned to
// the submission.
type Recorder struct {
	store Store
	log   *slog.Logger
}

var _ submitter.Observer = (*Recorder)(nil)

func NewRecorder(store Store, log *slog.Logger) (*Recorder, error) {
	if store == nil {
		return nil, ErrInvalidConfig
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log}, nil
}

func (r *Recorder) Observe(ctx context.Context, ev submitter.Event) {
	log := r.log.With("call_id", ev.Call.ID, "state", ev.To.String())

	if ev.From == 0 {
		a := annotationFrom(ctx)
		rec := Record{
			ID:            ev.Call.ID,
			Kind:          ev.Call.Kind,
			ProofCID:      ev.Call.ProofCID,
			Signer:        ev.Call.Signer,
			State:         ev.To,
			TxHash:        ev.Call.TxHash,
			PayloadDigest: a.PayloadDigest,
			ArchiveKey:    a.ArchiveKey,
			ErrorCode:     submitter.ErrorCode(ev.Err),
			ErrorMessage:  submitter.ErrorDetail(ev.Err),
			CreatedAt:     ev.At,
		}
		if err := r.store.Create(ctx, rec); err != nil && !errors.Is(err, ErrAlreadyExists) {
			log.Warn("journal create", "err", err)
		}
		return
	}

	_, err := r.store.Transition(ctx, ev.Call.ID, Transition{
		State:        ev.To,
		TxHash:       ev.Call.TxHash,
		ErrorCode:    submitter.ErrorCode(ev.Err),
		ErrorMessage: submitter.ErrorDetail(ev.Err),
		At:           ev.At,
	})
	if err != nil {
		log.Warn("journal transition", "from", ev.From.String(), "err", err)
	}
}
