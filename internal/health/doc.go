// Package health holds the liveness and readiness probes of the site server.
//
// A [Probe] is evaluated on every request to /healthz or /readyz. Probes are
// combined with [All] and labelled with [Named] so the 503 body says which
// dependency failed (rate limit store or renderer).
//
// [ShutdownGate] fails readiness as soon as shutdown starts so the load
// balancer drains the instance before the listeners close.
package health
