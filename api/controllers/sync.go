package controllers

import (
	"context"
	"net/http"

	"github.com/aryanmotgi/Arcus-Sheets/api/responses"
	"github.com/aryanmotgi/Arcus-Sheets/internal/syncer"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
)

// SyncRunner is the sync surface the ops endpoints drive.
type SyncRunner interface {
	RunSync(ctx context.Context, trigger enums.SyncTrigger) (syncer.Summary, error)
	Last(ctx context.Context) (syncer.Summary, bool, error)
}

// SyncLock serializes manual runs with the scheduler across workers.
type SyncLock interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) (bool, error)
}

// TriggerSync runs one sync synchronously and returns its summary. Partial
// runs answer 200 with status "partial"; aborted runs answer with the error
// and the summary as details.
func TriggerSync(runner SyncRunner, lock SyncLock, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}

		var (
			summary syncer.Summary
			runErr  error
		)
		run := func(ctx context.Context) error {
			summary, runErr = runner.RunSync(ctx, enums.SyncTriggerManual)
			return nil
		}

		if lock == nil {
			_ = run(r.Context())
		} else {
			ran, err := lock.Exclusive(r.Context(), run)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire sync lock"))
				return
			}
			if !ran {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a sync is already running"))
				return
			}
		}

		if runErr != nil {
			typed := pkgerrors.As(runErr)
			if typed == nil {
				typed = pkgerrors.Wrap(pkgerrors.CodeInternal, runErr, "sync failed")
			}
			if summary.RunID != "" && typed.Details() == nil {
				typed = pkgerrors.Wrap(typed.Code(), runErr, typed.Message()).WithDetails(summary)
			}
			responses.WriteError(r.Context(), logg, w, typed)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// LastSync returns the summary of the previous run.
func LastSync(runner SyncRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}
		summary, ok, err := runner.Last(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last sync"))
			return
		}
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no sync has completed yet"))
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
