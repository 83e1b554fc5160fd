// Package cryptoutil holds the small hashing helpers used by the webhook
// verifier and the site handler's ETags.
package cryptoutil
