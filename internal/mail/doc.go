// Package mail renders the site's Hebrew transactional emails and sends them
// through Resend.
package mail
