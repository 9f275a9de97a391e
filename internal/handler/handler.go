// Package handler exposes the discount engine over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/pkg/httpmiddleware"
)

// maxBodyBytes bounds evaluate request bodies.
const maxBodyBytes = 1 << 20

// Evaluator computes discounts for an evaluation context.
type Evaluator interface {
	Evaluate(ctx context.Context, ec discount.EvaluationContext) (*discount.Result, error)
}

// Handler serves the discount API.
type Handler struct {
	engine Evaluator
}

// New creates a Handler backed by engine.
func New(engine Evaluator) *Handler {
	return &Handler{engine: engine}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/discounts/evaluate", h.Evaluate)
}

// Evaluate handles POST /discounts/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpmiddleware.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httpmiddleware.WriteError(w, http.StatusBadRequest, "read request body")
		return
	}

	ec, err := decodeEvaluateRequest(body)
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.Evaluate(ctx, ec)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			lg.Debug("Evaluation canceled", zap.Error(err))
			return
		}
		lg.Error("Evaluate discounts", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encodeResult(res))
}
