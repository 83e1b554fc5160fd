package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ligadeals/ligadeals-web/internal/cfg"
	"github.com/ligadeals/ligadeals-web/internal/formhttp"
	"github.com/ligadeals/ligadeals-web/internal/health"
	"github.com/ligadeals/ligadeals-web/internal/httpmw"
	"github.com/ligadeals/ligadeals-web/internal/mail"
	"github.com/ligadeals/ligadeals-web/internal/opshttp"
	"github.com/ligadeals/ligadeals-web/internal/origin"
	"github.com/ligadeals/ligadeals-web/internal/pagecache"
	"github.com/ligadeals/ligadeals-web/internal/ratelimit"
	"github.com/ligadeals/ligadeals-web/internal/revalidate"
	"github.com/ligadeals/ligadeals-web/internal/revalidatehttp"
	"github.com/ligadeals/ligadeals-web/internal/secrets"
	"github.com/ligadeals/ligadeals-web/internal/sitehandler"
	"github.com/ligadeals/ligadeals-web/internal/validation"
	"github.com/ligadeals/ligadeals-web/internal/videohttp"
	"github.com/ligadeals/ligadeals-web/internal/webassets"

	"github.com/ligadeals/ligadeals-web/internal/httpserver"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/metrics"
	"github.com/ligadeals/ligadeals-web/internal/otelx"
	"github.com/ligadeals/ligadeals-web/internal/prof"
	v "github.com/ligadeals/ligadeals-web/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix LIGADEALS_
	cfg.FillFromEnv(flag.CommandLine, "LIGADEALS_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Component:         "server",
		Version:           vi.Version,
		Environment:       conf.Environment,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"environment", conf.Environment,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"origin_url", conf.OriginURL,
		"page_cache_ttl", conf.PageCacheTTL,
		"rate_limit_backend", conf.RateLimitBackend,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"otlp_protocol", conf.OTLPProtocol,
		"trace_sample", conf.TraceSample,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Contention:    conf.PyroContention,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Protocol:  conf.OTLPProtocol,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
		// webhooks and form posts are rare and worth keeping whole
		AlwaysSample: []string{"/api/revalidate", "/api/contact", "/api/newsletter"},
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// Secrets come from flags/env or from SSM when a parameter name is set.
	// AWS config is only loaded when something needs it.
	webhookSecret, resendKey := conf.WebhookSecret, conf.ResendAPIKey
	if conf.WebhookSecretSSMParam != "" || conf.ResendAPIKeySSMParam != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		resolver := secrets.NewResolver(ssm.NewFromConfig(awsCfg))
		if webhookSecret, err = resolver.Resolve(ctx, conf.WebhookSecret, conf.WebhookSecretSSMParam); err != nil {
			L.Error(ctx, err, "failed to resolve webhook secret", "param", conf.WebhookSecretSSMParam)
			os.Exit(1)
		}
		if resendKey, err = resolver.Resolve(ctx, conf.ResendAPIKey, conf.ResendAPIKeySSMParam); err != nil {
			L.Error(ctx, err, "failed to resolve resend api key", "param", conf.ResendAPIKeySSMParam)
			os.Exit(1)
		}
	}
	if webhookSecret == "" {
		// the webhook answers 500 until a secret is configured
		L.Warn(ctx, "no webhook secret configured, revalidation webhook disabled")
	}

	// Rate limit counters for the API groups
	var store ratelimit.Store
	switch conf.RateLimitBackend {
	case cfg.RateLimitRedis:
		rs, err := ratelimit.NewRedisStore(ctx, ratelimit.RedisConfig{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		if err != nil {
			L.Error(ctx, err, "failed to connect rate limit store", "redis_addr", conf.RedisAddr)
			os.Exit(1)
		}
		store = rs
	default:
		store = ratelimit.NewMemoryStore(ctx, time.Minute)
	}

	onWindowDenied := ratelimit.WithOnWindowDenied(func(scope string) { m.IncRateLimitDenied(scope) })
	apiLimit := ratelimit.NewFixedWindow(store, "api", conf.APIMaxRequests, conf.APIWindow, onWindowDenied)
	contactLimit := ratelimit.NewFixedWindow(store, "contact", conf.ContactMax, conf.FormWindow, onWindowDenied)
	newsletterLimit := ratelimit.NewFixedWindow(store, "newsletter", conf.NewsletterMax, conf.FormWindow, onWindowDenied)

	// Page cache in front of the renderer
	cache := pagecache.New(
		pagecache.WithTTL(conf.PageCacheTTL),
		pagecache.WithMaxEntries(conf.PageCacheMaxEntries),
		pagecache.WithOnEvict(m.AddPageCacheEvictions),
	)
	m.WatchPageCacheSize(cache.Len)
	go cache.Run(ctx, time.Minute)

	originClient, err := origin.NewClient(conf.OriginURL)
	if err != nil {
		L.Error(ctx, err, "invalid origin url", "origin_url", conf.OriginURL)
		os.Exit(1)
	}

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Origin:     originClient,
		Cache:      cache,
		FallbackFS: webassets.FallbackFS(),
		OnCache:    m.IncPageCache,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	// Webhook invalidations hit the local cache and, when configured, the renderer
	invalidators := []revalidate.Invalidator{cache}
	if conf.UpstreamRevalidateURL != "" {
		invalidators = append(invalidators, origin.NewRevalidator(
			conf.UpstreamRevalidateURL,
			conf.UpstreamSecret,
			&http.Client{Timeout: conf.InvalidateTimeout},
		))
	}
	gateway := revalidate.NewGateway(webhookSecret, revalidate.Multi(invalidators...),
		revalidate.WithCallTimeout(conf.InvalidateTimeout),
		revalidate.WithLogger(L),
		revalidate.WithOnInvalidate(m.IncInvalidation),
	)
	revalidateAPI := revalidatehttp.NewAPI(gateway, conf.IsDevelopment(), L)
	revalidateAPI.OnOutcome = m.IncWebhook

	// Outgoing mail goes through Resend; without a key it is only logged
	var sender mail.Sender = mail.LogSender{Logger: L}
	if resendKey != "" {
		sender = mail.NewResendSender(resendKey, conf.FromEmail)
	} else {
		L.Warn(ctx, "no resend api key configured, emails will only be logged")
	}
	renderer, err := mail.NewRenderer(conf.SiteURL, conf.ContactEmail)
	if err != nil {
		L.Error(ctx, err, "failed to parse email templates")
		os.Exit(1)
	}
	formAPI, err := formhttp.NewAPI(formhttp.Options{
		Logger:          L,
		ContactLimit:    contactLimit,
		NewsletterLimit: newsletterLimit,
		Renderer:        renderer,
		Sender:          sender,
		Validator:       validation.New(),
		OnSend:          m.IncEmail,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create form api")
		os.Exit(1)
	}

	videoAPI := videohttp.NewAPI(conf.VideoAllowedHost,
		videohttp.WithLogger(L),
		videohttp.WithOnUpstreamError(m.IncVideoUpstreamError),
	)

	routes := apiRoutes{
		limit:      apiLimit,
		cors:       httpmw.OriginPolicy{Allowed: conf.Origins(), Development: conf.IsDevelopment()},
		revalidate: revalidateAPI,
		forms:      formAPI,
		video:      videoAPI,
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// ready when not draining, the renderer answers and the counter store is reachable
	readiness := health.All(
		gate.Probe(),
		health.Named("origin", health.WithTimeout(2*time.Second, health.CheckFunc(originClient.Ping))),
		health.Named("ratelimit", health.WithTimeout(time.Second, health.CheckFunc(store.Ping))),
	)

	// Token bucket for page requests
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.SiteRatePerSec, conf.SiteRateBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied("site")
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    routes.register,
		SiteHandler:  siteHandler,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener port")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin/ops listener for metrics, health checks, pprof and page cache inspection
	// requests from public addresses are rejected in middleware
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		PageCache:    cache,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining", "drain", conf.DrainPeriod)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	if err := store.Close(); err != nil {
		L.Error(context.Background(), err, "rate limit store close")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when started with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
