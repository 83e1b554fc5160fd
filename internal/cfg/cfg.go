package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ligadeals/ligadeals-web/internal/log"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

type App struct {
	Environment       string
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	TrustedHops int
	DrainPeriod time.Duration
	SiteURL     string
	// comma separated list of origins allowed to call /api/*
	AllowedOrigins string

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	PyroContention  bool
	OTLPEndpoint    string
	OTLPProtocol    string
	TraceSample     float64

	OriginURL             string
	PageCacheTTL          time.Duration
	PageCacheMaxEntries   int
	UpstreamRevalidateURL string
	UpstreamSecret        string
	InvalidateTimeout     time.Duration

	WebhookSecret         string
	WebhookSecretSSMParam string

	ResendAPIKey         string
	ResendAPIKeySSMParam string
	FromEmail            string
	ContactEmail         string

	RateLimitBackend string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	APIWindow        time.Duration
	APIMaxRequests   int
	ContactMax       int
	NewsletterMax    int
	FormWindow       time.Duration
	SiteRatePerSec   float64
	SiteRateBurst    int

	VideoAllowedHost string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.Environment, "env", EnvProduction, "development|production")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 60*time.Second, "how long readiness fails before listeners close on shutdown")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "number of trusted proxies in front of the server (X-Forwarded-For)")
	fs.StringVar(&c.SiteURL, "site-url", "https://ligadeals-berlin.com", "public site URL used in emails")
	fs.StringVar(&c.AllowedOrigins, "allowed-origins", "https://ligadeals-berlin.com", "comma separated origins allowed to call the API")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.PyroContention, "pyro-contention", false, "also push mutex and block profiles (page cache lock, render waits)")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (host:port)")
	fs.StringVar(&c.OTLPProtocol, "otlp-protocol", "grpc", "OTLP transport: grpc|http")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.OriginURL, "origin-url", "http://127.0.0.1:3000", "page renderer the site handler proxies to")
	fs.DurationVar(&c.PageCacheTTL, "page-cache-ttl", time.Hour, "max age of a cached page (0 disables the cache)")
	fs.IntVar(&c.PageCacheMaxEntries, "page-cache-max-entries", 2048, "max number of cached pages")
	fs.StringVar(&c.UpstreamRevalidateURL, "upstream-revalidate-url", "", "renderer endpoint to forward path/tag invalidations to (optional)")
	fs.StringVar(&c.UpstreamSecret, "upstream-secret", "", "shared secret sent with upstream invalidations")
	fs.DurationVar(&c.InvalidateTimeout, "invalidate-timeout", 5*time.Second, "timeout for each path/tag invalidation call")

	fs.StringVar(&c.WebhookSecret, "webhook-secret", "", "CMS webhook HMAC secret")
	fs.StringVar(&c.WebhookSecretSSMParam, "webhook-secret-ssm-param", "", "SSM parameter holding the CMS webhook secret")

	fs.StringVar(&c.ResendAPIKey, "resend-api-key", "", "Resend API key")
	fs.StringVar(&c.ResendAPIKeySSMParam, "resend-api-key-ssm-param", "", "SSM parameter holding the Resend API key")
	fs.StringVar(&c.FromEmail, "from-email", "LigaDeals <noreply@ligadeals-berlin.com>", "sender address for outgoing email")
	fs.StringVar(&c.ContactEmail, "contact-email", "contact@ligadeals-berlin.com", "address receiving contact form and signup notifications")

	fs.StringVar(&c.RateLimitBackend, "rate-limit-backend", RateLimitMemory, "memory|redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for the redis rate limit backend")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")
	fs.DurationVar(&c.APIWindow, "api-window", time.Minute, "fixed window for the API-wide limit")
	fs.IntVar(&c.APIMaxRequests, "api-max-requests", 100, "requests per api-window per client")
	fs.DurationVar(&c.FormWindow, "form-window", time.Hour, "fixed window for contact and newsletter limits")
	fs.IntVar(&c.ContactMax, "contact-max", 5, "contact submissions per form-window per client")
	fs.IntVar(&c.NewsletterMax, "newsletter-max", 3, "newsletter signups per form-window per client")
	fs.Float64Var(&c.SiteRatePerSec, "site-rate", 10, "page requests per second per client (token refill rate)")
	fs.IntVar(&c.SiteRateBurst, "site-burst", 30, "page request burst per client")

	fs.StringVar(&c.VideoAllowedHost, "video-allowed-host", "cdn.sanity.io", "only host the video proxy will fetch from")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// Origins splits AllowedOrigins into trimmed, non-empty entries.
func (c App) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c App) IsDevelopment() bool { return c.Environment == EnvDevelopment }

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errs = append(errs, fmt.Errorf("invalid ENV %q (must be development|production)", c.Environment))
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.DrainPeriod < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_PERIOD must not be negative"))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_HOPS %d (must be 0..8)", c.TrustedHops))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Observability
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be an http(s) URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// both exporters take host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
		if c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
			errs = append(errs, fmt.Errorf("invalid OTLP_PROTOCOL %q (want grpc|http)", c.OTLPProtocol))
		}
	}

	// Origin and cache
	if u, err := url.Parse(c.OriginURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("ORIGIN_URL must be an absolute URL (got %q)", c.OriginURL))
	}
	if c.SiteURL != "" {
		if u, err := url.Parse(c.SiteURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("SITE_URL must be an absolute URL (got %q)", c.SiteURL))
		}
	}
	if c.PageCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("PAGE_CACHE_TTL must not be negative"))
	}
	if c.PageCacheMaxEntries < 1 {
		errs = append(errs, fmt.Errorf("PAGE_CACHE_MAX_ENTRIES must be >= 1 (got %d)", c.PageCacheMaxEntries))
	}
	if c.UpstreamRevalidateURL != "" {
		if u, err := url.Parse(c.UpstreamRevalidateURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("UPSTREAM_REVALIDATE_URL must be an absolute URL (got %q)", c.UpstreamRevalidateURL))
		}
	}
	if c.InvalidateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INVALIDATE_TIMEOUT must be > 0"))
	}

	// the webhook secret itself is checked per request so a missing secret
	// answers 500 instead of keeping the whole site down
	if c.WebhookSecret != "" && c.WebhookSecretSSMParam != "" {
		errs = append(errs, fmt.Errorf("set only one of WEBHOOK_SECRET and WEBHOOK_SECRET_SSM_PARAM"))
	}
	if c.ResendAPIKey != "" && c.ResendAPIKeySSMParam != "" {
		errs = append(errs, fmt.Errorf("set only one of RESEND_API_KEY and RESEND_API_KEY_SSM_PARAM"))
	}
	if _, err := mail.ParseAddress(c.FromEmail); err != nil {
		errs = append(errs, fmt.Errorf("invalid FROM_EMAIL %q: %v", c.FromEmail, err))
	}
	if _, err := mail.ParseAddress(c.ContactEmail); err != nil {
		errs = append(errs, fmt.Errorf("invalid CONTACT_EMAIL %q: %v", c.ContactEmail, err))
	}

	// Rate limits
	switch c.RateLimitBackend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR required when RATE_LIMIT_BACKEND=redis"))
		} else if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BACKEND %q (must be memory|redis)", c.RateLimitBackend))
	}
	if c.APIWindow <= 0 || c.FormWindow <= 0 {
		errs = append(errs, fmt.Errorf("API_WINDOW and FORM_WINDOW must be > 0"))
	}
	if c.APIMaxRequests < 1 || c.ContactMax < 1 || c.NewsletterMax < 1 {
		errs = append(errs, fmt.Errorf("API_MAX_REQUESTS, CONTACT_MAX and NEWSLETTER_MAX must be >= 1"))
	}
	if c.SiteRatePerSec <= 0 || c.SiteRateBurst < 1 {
		errs = append(errs, fmt.Errorf("SITE_RATE must be > 0 and SITE_BURST >= 1"))
	}

	if strings.TrimSpace(c.VideoAllowedHost) == "" {
		errs = append(errs, fmt.Errorf("VIDEO_ALLOWED_HOST is required"))
	}

	return errors.Join(errs...)
}
