package formhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/httpmw"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/mail"
	"github.com/ligadeals/ligadeals-web/internal/ratelimit"
	"github.com/ligadeals/ligadeals-web/internal/validation"
)

const maxFormBytes = 16 << 10

// Send outcomes passed to OnSend.
const (
	SendOK    = "ok"
	SendError = "error"
)

var ErrInvalidOptions = errors.New("formhttp: invalid options")

type Options struct {
	Logger          log.Logger
	ContactLimit    *ratelimit.FixedWindow
	NewsletterLimit *ratelimit.FixedWindow
	Renderer        *mail.Renderer
	Sender          mail.Sender
	Validator       *validation.Validator

	// bounds each provider call
	SendTimeout time.Duration // default: 10s
	Now         func() time.Time

	// called concurrently for the two contact emails
	OnSend func(category, outcome string)
}

type API struct {
	opts Options
}

func NewAPI(opts Options) (*API, error) {
	if opts.ContactLimit == nil || opts.NewsletterLimit == nil {
		return nil, errors.Join(ErrInvalidOptions, errors.New("rate limiters are required"))
	}
	if opts.Renderer == nil || opts.Sender == nil {
		return nil, errors.Join(ErrInvalidOptions, errors.New("renderer and sender are required"))
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Validator == nil {
		opts.Validator = validation.New()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &API{opts: opts}, nil
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Post("/api/contact", api.HandleContact)
	r.Post("/api/newsletter", api.HandleNewsletter)
}

type successResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	HebrewMessage string `json:"hebrewMessage"`
	EmailID       string `json:"emailId,omitempty"`
}

// limit runs the window check and writes the 429 itself when denied.
func (api *API) limit(w http.ResponseWriter, r *http.Request, fw *ratelimit.FixedWindow) (ratelimit.Decision, bool) {
	ctx := r.Context()
	d, err := fw.Check(ctx, httpmw.ClientIPFromContext(ctx))
	if err != nil {
		api.opts.Logger.Warn(ctx, "rate limit store unavailable, allowing request", "scope", fw.Scope(), "error", err)
	}
	if d.Allowed {
		return d, true
	}
	ratelimit.SetHeaders(w.Header(), d)
	w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(api.opts.Now())))
	apiresp.Error(ctx, w, http.StatusTooManyRequests, "Too many requests. Please try again later.", apiresp.HeTooManyRequests)
	return d, false
}

func (api *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err := dec.Decode(dst); err != nil {
		api.opts.Logger.Debug(r.Context(), "rejecting form body", "err", err)
		apiresp.Error(r.Context(), w, http.StatusBadRequest, "Invalid request body", "בקשה לא תקינה")
		return false
	}
	return true
}

func (api *API) send(ctx context.Context, m mail.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, api.opts.SendTimeout)
	defer cancel()
	id, err := api.opts.Sender.Send(ctx, m)
	outcome := SendOK
	if err != nil {
		outcome = SendError
	}
	if api.opts.OnSend != nil {
		api.opts.OnSend(m.Category, outcome)
	}
	return id, err
}

// firstProblem maps validation failures to the message for the first
// offending field, in form order.
func firstProblem(err error, order []fieldMessage) (fieldMessage, bool) {
	var verr *validation.Error
	if !errors.As(err, &verr) {
		return fieldMessage{}, false
	}
	for _, f := range verr.Fields {
		if f.Tag == "required" {
			return order[0], true
		}
	}
	for _, fm := range order[1:] {
		if verr.Has(fm.field) {
			return fm, true
		}
	}
	return fieldMessage{}, false
}

type fieldMessage struct {
	field  string
	en, he string
}

func (api *API) rejectInvalid(w http.ResponseWriter, r *http.Request, err error, order []fieldMessage) {
	fm, ok := firstProblem(err, order)
	if !ok {
		api.opts.Logger.Error(r.Context(), err, "form validation failed unexpectedly")
		apiresp.Error(r.Context(), w, http.StatusInternalServerError, "Internal server error", apiresp.HeServerError)
		return
	}
	apiresp.Error(r.Context(), w, http.StatusBadRequest, fm.en, fm.he)
}

// bestEffort runs fn alongside the main send. Its failure is only logged.
func (api *API) bestEffort(ctx context.Context, g *errgroup.Group, what string, fn func() error) {
	g.Go(func() error {
		if err := fn(); err != nil {
			api.opts.Logger.Warn(ctx, "best effort email failed", "email", what, "err", err)
		}
		return nil
	})
}
