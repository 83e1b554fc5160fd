// Package revalidatehttp exposes the CMS revalidation webhook.
package revalidatehttp

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/revalidate"
)

const (
	// SignatureHeader is what the CMS sends; LegacySignatureHeader is
	// accepted from older webhook definitions.
	SignatureHeader       = "sanity-webhook-signature"
	LegacySignatureHeader = "signature"

	MaxBodyBytes = 64 << 10
)

// Outcomes passed to OnOutcome.
const (
	OutcomeOK           = "ok"
	OutcomePartial      = "partial"
	OutcomeUnconfigured = "unconfigured"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBadPayload   = "bad_payload"
	OutcomeTooLarge     = "too_large"
	OutcomeError        = "error"
)

// Handler is the webhook gateway. *revalidate.Gateway implements it.
type Handler interface {
	Handle(ctx context.Context, body []byte, signature string) (revalidate.Result, error)
	Configured() bool
}

type API struct {
	gw          Handler
	logger      log.Logger
	development bool

	OnOutcome func(outcome string)
}

func NewAPI(gw Handler, development bool, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{gw: gw, logger: logger, development: development}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Post("/api/revalidate", api.HandleWebhook)
	r.Get("/api/revalidate", api.HandleStatus)
	r.Options("/api/revalidate", api.HandlePreflight)
}

type statusResponse struct {
	Message     string `json:"message"`
	Info        string `json:"info"`
	Environment string `json:"environment"`
	Configured  bool   `json:"configured"`
}

func (api *API) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.observe(OutcomeTooLarge)
			apiresp.Error(ctx, w, http.StatusRequestEntityTooLarge, "Payload too large", "")
			return
		}
		api.observe(OutcomeError)
		api.logger.Error(ctx, err, "failed to read webhook body")
		apiresp.Error(ctx, w, http.StatusBadRequest, "Failed to read body", "")
		return
	}

	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		sig = r.Header.Get(LegacySignatureHeader)
	}

	res, err := api.gw.Handle(ctx, body, sig)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}

	if res.Partial() {
		api.observe(OutcomePartial)
		api.logger.Warn(ctx, "revalidation partially failed",
			"doc_type", res.DocumentType.String(),
			"failed", len(res.Failed),
			"paths", len(res.Revalidated.Paths),
			"tags", len(res.Revalidated.Tags),
		)
	} else {
		api.observe(OutcomeOK)
	}
	apiresp.WriteJSON(ctx, w, http.StatusOK, res)
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var perr *revalidate.PayloadError
	switch {
	case errors.Is(err, revalidate.ErrNotConfigured):
		api.observe(OutcomeUnconfigured)
		api.logger.Error(ctx, err, "webhook secret is not configured")
		apiresp.Error(ctx, w, http.StatusInternalServerError, "Webhook secret not configured", "")
	case errors.Is(err, revalidate.ErrInvalidSignature):
		api.observe(OutcomeUnauthorized)
		api.logger.Warn(ctx, "invalid webhook signature")
		apiresp.Error(ctx, w, http.StatusUnauthorized, "Invalid signature", "")
	case errors.As(err, &perr) && perr.Schema:
		api.observe(OutcomeBadPayload)
		api.logger.Warn(ctx, "webhook payload rejected", "err", err)
		apiresp.WriteJSON(ctx, w, http.StatusBadRequest, apiresp.ErrorBody{Error: "Invalid payload", Details: perr.Err.Error()})
	default:
		// unparseable JSON lands here, as an internal error
		api.observe(OutcomeError)
		api.logger.Error(ctx, err, "revalidation webhook error")
		apiresp.WriteJSON(ctx, w, http.StatusInternalServerError, apiresp.ErrorBody{Error: "Internal server error", Details: err.Error()})
	}
}

// HandleStatus is a development-only liveness check for the webhook.
func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.development {
		apiresp.Error(ctx, w, http.StatusForbidden, "Not available in production", "")
		return
	}
	apiresp.WriteJSON(ctx, w, http.StatusOK, statusResponse{
		Message:     "Revalidation webhook endpoint is working",
		Info:        "Send POST requests with CMS webhook payload to trigger revalidation",
		Environment: "development",
		Configured:  api.gw.Configured(),
	})
}

// HandlePreflight answers CORS preflights. The CMS calls server to server,
// so any origin is allowed.
func (api *API) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+SignatureHeader)
	apiresp.WriteJSON(r.Context(), w, http.StatusOK, struct{}{})
}

func (api *API) observe(outcome string) {
	if api.OnOutcome != nil {
		api.OnOutcome(outcome)
	}
}
