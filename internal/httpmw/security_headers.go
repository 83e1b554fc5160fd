package httpmw

import "net/http"

// Security note: CSRF tokens are not used. The only state-changing routes are
// the JSON form endpoints, which sit behind the Origin guard in CORS and
// accept no cookies.

// contentSecurityPolicy allows the renderer's inline bootstrap scripts and
// media from the CMS CDN, nothing else cross-origin.
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https://cdn.sanity.io; " +
	"media-src 'self' https://cdn.sanity.io; " +
	"font-src 'self' data:; " +
	"connect-src 'self'; " +
	"base-uri 'self'; form-action 'self'; frame-ancestors 'self'; object-src 'none'; " +
	"upgrade-insecure-requests"

// SecurityHeaders is middleware that adds common security headers to HTTP responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Require HTTPS for one year, including subdomains, and allow preload
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

		h.Set("Content-Security-Policy", contentSecurityPolicy)

		// Disable MIME type sniffing
		h.Set("X-Content-Type-Options", "nosniff")

		// Old clickjacking protection, same-origin embeds only (gallery lightbox)
		h.Set("X-Frame-Options", "SAMEORIGIN")

		// Legacy XSS auditor for old browsers
		h.Set("X-XSS-Protection", "1; mode=block")

		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Permissions policy to disable various powerful (in)security features
		h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")

		h.Set("X-Permitted-Cross-Domain-Policies", "none")

		// Isolate browsing context. No COEP: CDN images do not send CORP.
		h.Set("Cross-Origin-Opener-Policy", "same-origin")

		// Handlers may relax this (the video proxy sets cross-origin)
		h.Set("Cross-Origin-Resource-Policy", "same-origin")

		next.ServeHTTP(w, r)
	})
}
