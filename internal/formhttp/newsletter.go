package formhttp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/mail"
)

type newsletterRequest struct {
	Email string `json:"email" validate:"required,loose_email"`
	Name  string `json:"name,omitempty"`
}

var newsletterProblems = []fieldMessage{
	{"", "Email is required", "נדרש אימייל"},
	{"email", "Invalid email address", apiresp.HeInvalidEmail},
}

func (api *API) HandleNewsletter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, ok := api.limit(w, r, api.opts.NewsletterLimit)
	if !ok {
		return
	}

	var req newsletterRequest
	if !api.decode(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := api.opts.Validator.Struct(req); err != nil {
		api.rejectInvalid(w, r, err, newsletterProblems)
		return
	}

	s := mail.Subscriber{Name: cleanLine(req.Name), Email: req.Email, SentAt: api.opts.Now()}
	welcome, err := api.opts.Renderer.Welcome(s)
	if err != nil {
		api.opts.Logger.Error(ctx, err, "render welcome email")
		apiresp.Error(ctx, w, http.StatusInternalServerError, "Internal server error", apiresp.HeServerError)
		return
	}
	id, err := api.send(ctx, welcome)
	if err != nil {
		api.opts.Logger.Error(ctx, err, "failed to send welcome email")
		apiresp.Error(ctx, w, http.StatusInternalServerError, "Failed to send welcome email", "שליחת אימייל נכשלה. אנא נסה שוב.")
		return
	}

	// the signup stands even if the owner is not told about it
	if notice, err := api.opts.Renderer.SubscriberNotice(s); err != nil {
		api.opts.Logger.Warn(ctx, "render subscriber notice", "err", err)
	} else if _, err := api.send(ctx, notice); err != nil {
		api.opts.Logger.Warn(ctx, "failed to send admin notification", "err", err)
	}

	api.opts.Logger.Info(ctx, "newsletter signup", "email_id", id)
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	apiresp.WriteJSON(ctx, w, http.StatusOK, successResponse{
		Success:       true,
		Message:       "Successfully subscribed to newsletter",
		HebrewMessage: "נרשמת בהצלחה לניוזלטר",
		EmailID:       id,
	})
}
