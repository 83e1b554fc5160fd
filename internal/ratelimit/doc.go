// Package ratelimit has the two request limiters of the site.
//
// [IPLimiter] is a per-IP token bucket in front of page traffic. It smooths
// floods from a single address and never leaves the process.
//
// [FixedWindow] counts requests per client in fixed wall-clock windows and
// backs the /api routes (100 per minute overall, 5 contact submissions and
// 3 newsletter signups per hour). Its counters live in a [Store]: the
// in-process [MemoryStore] for a single instance or [RedisStore] when several
// instances must share one budget.
package ratelimit
