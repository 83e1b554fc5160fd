// Package formhttp serves the contact form and newsletter signup endpoints.
// Both are rate limited per client IP, validated, and answered with
// bilingual JSON so the site can show the Hebrew message directly.
package formhttp
