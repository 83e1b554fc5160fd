package formhttp

import (
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/mail"
)

type contactRequest struct {
	Name    string `json:"name" validate:"required,trimmed_min=2"`
	Email   string `json:"email" validate:"required,loose_email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,phone"`
	Message string `json:"message" validate:"required,trimmed_min=10"`
}

var contactProblems = []fieldMessage{
	{"", "Missing required fields", "חסרים שדות חובה"},
	{"name", "Name must be at least 2 characters", "השם חייב להכיל לפחות 2 תווים"},
	{"email", "Invalid email address", apiresp.HeInvalidEmail},
	{"phone", "Invalid phone number", "מספר טלפון לא תקין"},
	{"message", "Message must be at least 10 characters", "ההודעה חייבת להכיל לפחות 10 תווים"},
}

func (api *API) HandleContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, ok := api.limit(w, r, api.opts.ContactLimit)
	if !ok {
		return
	}

	var req contactRequest
	if !api.decode(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := api.opts.Validator.Struct(req); err != nil {
		api.rejectInvalid(w, r, err, contactProblems)
		return
	}

	c := mail.Contact{
		Name:    cleanLine(req.Name),
		Email:   req.Email,
		Phone:   cleanLine(req.Phone),
		Message: cleanText(req.Message),
		SentAt:  api.opts.Now(),
	}
	notice, err := api.opts.Renderer.ContactNotice(c)
	if err != nil {
		api.opts.Logger.Error(ctx, err, "render contact email")
		apiresp.Error(ctx, w, http.StatusInternalServerError, "Internal server error", apiresp.HeServerError)
		return
	}

	var g errgroup.Group
	api.bestEffort(ctx, &g, mail.CategoryThankYou, func() error {
		m, err := api.opts.Renderer.ThankYou(c)
		if err != nil {
			return err
		}
		_, err = api.send(ctx, m)
		return err
	})
	id, sendErr := api.send(ctx, notice)
	_ = g.Wait()

	if sendErr != nil {
		api.opts.Logger.Error(ctx, sendErr, "failed to send contact email")
		apiresp.Error(ctx, w, http.StatusInternalServerError, "Failed to send email", "שליחת האימייל נכשלה. אנא נסה שוב.")
		return
	}

	api.opts.Logger.Info(ctx, "contact form sent", "email_id", id)
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	apiresp.WriteJSON(ctx, w, http.StatusOK, successResponse{
		Success:       true,
		Message:       "Message sent successfully",
		HebrewMessage: "ההודעה נשלחה בהצלחה",
		EmailID:       id,
	})
}
