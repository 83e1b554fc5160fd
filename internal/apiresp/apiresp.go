// Package apiresp writes the JSON bodies shared by the /api handlers.
package apiresp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ligadeals/ligadeals-web/internal/log"
)

// ErrorBody is the failure shape every API route answers with. HebrewError
// is shown to visitors, Error is for logs and clients that do not render RTL.
type ErrorBody struct {
	Error       string `json:"error"`
	HebrewError string `json:"hebrewError,omitempty"`
	Details     string `json:"details,omitempty"`
}

// Common Hebrew messages.
const (
	HeTooManyRequests = "יותר מדי בקשות. אנא נסה שוב מאוחר יותר."
	HeServerError     = "שגיאת שרת. אנא נסה שוב מאוחר יותר."
	HeInvalidEmail    = "כתובת אימייל לא תקינה"
)

// WriteJSON encodes v with status. API responses are never cached.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(ctx).Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

// Error writes an ErrorBody.
func Error(ctx context.Context, w http.ResponseWriter, status int, msg, hebrew string) {
	WriteJSON(ctx, w, status, ErrorBody{Error: msg, HebrewError: hebrew})
}
