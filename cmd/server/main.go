// Command server starts the orchestrator and its admin HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"emberlive/internal/api"
	"emberlive/internal/config"
	"emberlive/internal/directory"
	"emberlive/internal/journal"
	"emberlive/internal/modules"
	"emberlive/internal/observability/logging"
	"emberlive/internal/observability/metrics"
	"emberlive/internal/orchestrator"
	"emberlive/internal/server"
	"emberlive/internal/serverutil"
)

// keyValueFlag collects repeated "name=value" flags, e.g.
// -provider rtmp=http://rtmpd:8090 -provider ovt=http://ovtd:8091.
type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	parts := make([]string, 0, len(*kv))
	for key, value := range *kv {
		parts = append(parts, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid format %q, expected name=value", value)
	}
	name := strings.ToLower(strings.TrimSpace(parts[0]))
	if name == "" {
		return fmt.Errorf("module name is required")
	}
	if *kv == nil {
		*kv = make(map[string]string)
	}
	(*kv)[name] = strings.TrimSpace(parts[1])
	return nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

var providerTypes = map[string]orchestrator.ProviderType{
	"rtmp":      orchestrator.ProviderRTMP,
	"rtsp":      orchestrator.ProviderRTSPPull,
	"ovt":       orchestrator.ProviderOVT,
	"mpegts":    orchestrator.ProviderMPEGTS,
	"file":      orchestrator.ProviderFile,
	"scheduled": orchestrator.ProviderScheduled,
}

func main() {
	var providerFlags, mediaRouterFlags, transcoderFlags, publisherFlags keyValueFlag
	addr := flag.String("addr", envOr("EMBERLIVE_ADDR", ":8080"), "HTTP listen address")
	originMapPath := flag.String("origin-map", envOr("EMBERLIVE_ORIGIN_MAP", ""), "path to the origin-map YAML file")
	logLevel := flag.String("log-level", envOr("EMBERLIVE_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOr("EMBERLIVE_LOG_FORMAT", "json"), "log format (json or text)")
	tokenHashes := flag.String("admin-token-hashes", envOr("EMBERLIVE_ADMIN_TOKEN_HASHES", ""), "comma-separated pbkdf2 hashes of admin API tokens (empty disables auth)")
	minAppID := flag.Int64("min-app-id", int64(envIntOr("EMBERLIVE_MIN_APP_ID", orchestrator.DefaultMinApplicationID)), "floor for allocated application IDs")
	journalDriver := flag.String("journal-driver", envOr("EMBERLIVE_JOURNAL_DRIVER", "memory"), "journal driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", envOr("EMBERLIVE_POSTGRES_DSN", ""), "Postgres connection string for the journal")
	redisAddr := flag.String("redis-addr", envOr("EMBERLIVE_REDIS_ADDR", ""), "Redis address for the stream directory (empty disables it)")
	redisPassword := flag.String("redis-password", os.Getenv("EMBERLIVE_REDIS_PASSWORD"), "Redis password for the stream directory")
	nodeID := flag.String("node-id", envOr("EMBERLIVE_NODE_ID", ""), "node identity announced in the stream directory")
	rateLimit := flag.Int("rate-limit", envIntOr("EMBERLIVE_RATE_LIMIT", 0), "admin API requests allowed per window per IP (0 disables)")
	rateWindow := flag.Duration("rate-window", time.Minute, "admin API rate-limit window")
	tlsCert := flag.String("tls-cert", envOr("EMBERLIVE_TLS_CERT", ""), "path to TLS certificate file")
	tlsKey := flag.String("tls-key", envOr("EMBERLIVE_TLS_KEY", ""), "path to TLS private key file")
	moduleToken := flag.String("module-token", os.Getenv("EMBERLIVE_MODULE_TOKEN"), "bearer token presented to remote module daemons")
	flag.Var(&providerFlags, "provider", "remote provider as type=url (repeatable; types: rtmp, rtsp, ovt, mpegts, file, scheduled)")
	flag.Var(&mediaRouterFlags, "media-router", "remote media router as name=url (repeatable; reports streams via POST /api/streams)")
	flag.Var(&transcoderFlags, "transcoder", "remote transcoder as name=url (repeatable)")
	flag.Var(&publisherFlags, "publisher", "remote publisher as name=url (repeatable)")
	hashToken := flag.String("hash-token", "", "print the hash for the given admin token and exit")
	flag.Parse()

	if *hashToken != "" {
		hash, err := api.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	logger := logging.Init(logging.Config{Level: *logLevel, Format: *logFormat})
	recorder := metrics.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var jnl journal.Journal
	switch strings.ToLower(*journalDriver) {
	case "", "memory":
		jnl = journal.NewMemoryJournal(0)
	case "postgres":
		pg, err := journal.NewPostgresJournal(ctx, journal.PostgresConfig{
			DSN:     *postgresDSN,
			AppName: "emberlive-orchestrator",
		})
		if err != nil {
			logger.Error("open postgres journal", "error", err)
			os.Exit(1)
		}
		jnl = pg
	default:
		logger.Error("unknown journal driver", "driver", *journalDriver)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jnl.Close(closeCtx); err != nil {
			logger.Warn("close journal", "error", err)
		}
	}()

	var publisher *directory.Publisher
	if *redisAddr != "" {
		var err error
		publisher, err = directory.New(directory.Config{
			Addr:     *redisAddr,
			Password: *redisPassword,
			NodeID:   *nodeID,
			Logger:   logging.WithComponent(logger, "directory"),
		})
		if err != nil {
			logger.Error("connect stream directory", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
	}

	orchCfg := orchestrator.Config{
		Logger:   logging.WithComponent(logger, "orchestrator"),
		Metrics:  recorder,
		Journal:  jnl,
		MinAppID: *minAppID,
	}
	if publisher != nil {
		orchCfg.Streams = publisher
	}
	orch := orchestrator.New(orchCfg)

	reporters, err := registerModules(orch, logger, *moduleToken, providerFlags, mediaRouterFlags, transcoderFlags, publisherFlags)
	if err != nil {
		logger.Error("register modules", "error", err)
		os.Exit(1)
	}

	if *originMapPath != "" {
		originMap, err := config.Load(*originMapPath)
		if err != nil {
			logger.Error("load origin map", "error", err)
			os.Exit(1)
		}
		if err := orch.ApplyOriginMap(ctx, originMap.Hosts); err != nil {
			logger.Error("apply origin map", "error", err)
			os.Exit(1)
		}
	}

	var tokens *api.TokenVerifier
	if trimmed := strings.TrimSpace(*tokenHashes); trimmed != "" {
		var err error
		tokens, err = api.NewTokenVerifier(strings.Split(trimmed, ","))
		if err != nil {
			logger.Error("parse admin token hashes", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("admin API authentication is disabled")
	}

	handler := api.NewHandler(orch, jnl, logging.WithComponent(logger, "api"))
	handler.Streams = reporters
	root := server.New(handler, server.Config{
		Logger:    logging.WithComponent(logger, "http"),
		Metrics:   recorder,
		Tokens:    tokens,
		RateLimit: server.RateLimitConfig{Limit: *rateLimit, Window: *rateWindow},
	})
	srv := server.NewHTTPServer(*addr, root)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("admin API listening", "addr", *addr)
		return serverutil.Run(groupCtx, srv, serverutil.TLSConfig{CertFile: *tlsCert, KeyFile: *tlsKey}, 0)
	})
	if publisher != nil {
		group.Go(func() error {
			err := publisher.RunRefresh(groupCtx, 0)
			if groupCtx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// registerModules wires the remote module daemons named on the command line
// into the orchestrator's registry. Media routers are returned so the admin
// API can dispatch their inbound stream reports.
func registerModules(orch *orchestrator.Orchestrator, logger *slog.Logger, token string, providers, mediaRouters, transcoders, publishers keyValueFlag) ([]api.StreamReporter, error) {
	moduleLogger := logging.WithComponent(logger, "modules")
	for name, baseURL := range providers {
		providerType, ok := providerTypes[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider type %q", name)
		}
		provider, err := modules.NewRemoteProvider(providerType, modules.RemoteConfig{
			BaseURL: baseURL,
			Token:   token,
			Logger:  moduleLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		if !orch.Register(provider) {
			return nil, fmt.Errorf("provider %s: registration refused", name)
		}
	}
	var reporters []api.StreamReporter
	for name, baseURL := range mediaRouters {
		router, err := modules.NewRemoteMediaRouter(modules.RemoteConfig{
			BaseURL: baseURL,
			Token:   token,
			Logger:  moduleLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("media router %s: %w", name, err)
		}
		if !orch.Register(router) {
			return nil, fmt.Errorf("media router %s: registration refused", name)
		}
		reporters = append(reporters, router)
	}
	for name, baseURL := range transcoders {
		module, err := modules.NewRemoteModule(orchestrator.KindTranscoder, modules.RemoteConfig{
			BaseURL: baseURL,
			Token:   token,
			Logger:  moduleLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("transcoder %s: %w", name, err)
		}
		if !orch.Register(module) {
			return nil, fmt.Errorf("transcoder %s: registration refused", name)
		}
	}
	for name, baseURL := range publishers {
		module, err := modules.NewRemoteModule(orchestrator.KindPublisher, modules.RemoteConfig{
			BaseURL: baseURL,
			Token:   token,
			Logger:  moduleLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("publisher %s: %w", name, err)
		}
		if !orch.Register(module) {
			return nil, fmt.Errorf("publisher %s: registration refused", name)
		}
	}
	return reporters, nil
}
