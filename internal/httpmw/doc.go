// Package httpmw provides HTTP middleware for the public-facing server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, panic recovery, request ID, client IP extraction,
// the site rate limiter, OTEL tracing, metrics, structured logging, and
// the chi router. The API group adds CORS on top of its own limiter.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. User-supplied data (query params, user-agent,
// headers, form fields) is excluded from logs to prevent PII leaks and
// log injection.
package httpmw
