// ABOUTME: Entry point for the hive-orchestrator agent execution service
// ABOUTME: Wires store, auth, guardrails, event bus, and the actor registry

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/hive-orchestrator/internal/actor"
	"github.com/2389/hive-orchestrator/internal/auth"
	"github.com/2389/hive-orchestrator/internal/config"
	"github.com/2389/hive-orchestrator/internal/event"
	"github.com/2389/hive-orchestrator/internal/guardrail"
	"github.com/2389/hive-orchestrator/internal/orchestrator"
	"github.com/2389/hive-orchestrator/internal/provider"
	"github.com/2389/hive-orchestrator/internal/store"
	"github.com/2389/hive-orchestrator/internal/task"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _     _
| |__ (_)_   _____
| '_ \| \ \ / / _ \
| | | | |\ V /  __/
|_| |_|_| \_/ \___|  orchestrator
`

// getConfigPath returns the path to the orchestrator config file.
// Priority: HIVE_CONFIG env var > XDG_CONFIG_HOME/hive/orchestrator.yaml > ~/.config/hive/orchestrator.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HIVE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "orchestrator.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hive", "orchestrator.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hive-orchestrator <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the orchestrator service")
		fmt.Println("  init     Write a starter config file")
		fmt.Println("  health   Check orchestrator health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Provider:  %s\n", cfg.Provider.Name)
	fmt.Println()

	logger.Info("starting hive-orchestrator",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"provider", cfg.Provider.Name,
	)

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer sqlStore.Close()

	policy, err := loadPolicy(cfg.Guardrails.PolicyPath)
	if err != nil {
		return fmt.Errorf("loading guardrail policy: %w", err)
	}

	bus := event.NewBus(logger)
	var metrics *orchestrator.Metrics

	keys := auth.NewKeySetCache(cfg.Auth.JWKSURL, cfg.Auth.JWKSCacheTTL, nil, logger)
	gateway := auth.NewGateway(auth.Options{
		Issuer:          cfg.Auth.Issuer,
		Audience:        cfg.Auth.Audience,
		APIKeyVerifyURL: cfg.Auth.APIKeyVerifyURL,
		DevOverride:     cfg.Auth.DevOverride,
	}, keys, nil, logger)

	var providerClient provider.Client = provider.NewHTTPClient(
		cfg.Provider.Name, cfg.Provider.BaseURL, cfg.Provider.Token, nil)

	deps := actor.Deps{
		Provider: providerClient,
		Tools:    actor.NewHTTPToolRunner(cfg.Tools.BaseURL, cfg.Tools.Token, cfg.Tools.Names, nil),
		Tasks:    task.NewHTTPService(cfg.Tasks.BaseURL, cfg.Tasks.Token, nil),
		Guard:    guardrail.NewEvaluator(policy),
		Store:    sqlStore,
		Bus:      bus,
		Logger:   logger,
	}

	// The gauge closure is late-bound so metrics can instrument the
	// provider before the registry captures its deps.
	var registry *actor.Registry
	if cfg.Metrics.Enabled {
		metrics = orchestrator.NewMetrics(func() int { return registry.Count() })
		deps.Provider = metrics.InstrumentProvider(providerClient)
	}

	registry = actor.NewRegistry(ctx, deps, actor.Config{
		CheckpointEvery:  cfg.Agents.CheckpointEvery,
		RetryCeiling:     cfg.Agents.RetryCeiling,
		ProgressInterval: cfg.Agents.ProgressInterval,
		ProviderTimeout:  cfg.Agents.ProviderTimeout,
		ToolTimeout:      cfg.Agents.ToolTimeout,
	}, cfg.Agents.IdleEviction, logger)

	server := orchestrator.NewServer(orchestrator.Options{
		Registry:    registry,
		Gateway:     gateway,
		Store:       sqlStore,
		Metrics:     metrics,
		Issuer:      cfg.Auth.Issuer,
		JWKSURL:     cfg.Auth.JWKSURL,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		event.RunAudit(gctx, bus, sqlStore, logger)
		return nil
	})
	g.Go(func() error {
		registry.RunEviction(gctx)
		return nil
	})
	if metrics != nil {
		g.Go(func() error {
			metrics.RunCollector(gctx, bus, logger)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadPolicy reads the guardrail policy, or falls back to unlimited
// budgets when no policy file is configured.
func loadPolicy(path string) (guardrail.PolicySource, error) {
	if path == "" {
		return guardrail.ParsePolicy("")
	}
	return guardrail.LoadPolicy(path)
}

const starterConfig = `server:
  http_addr: ":8080"

database:
  path: ${HOME}/.local/share/hive/orchestrator.db

auth:
  issuer: https://sso.example.com
  audience: hive-orchestrator
  jwks_url: https://sso.example.com/.well-known/jwks.json
  api_key_verify_url: https://sso.example.com/api/keys/verify
  dev_override: false

provider:
  name: anthropic
  base_url: https://provider.example.com
  token: ${HIVE_PROVIDER_TOKEN}

tools:
  base_url: https://tools.example.com
  token: ${HIVE_TOOLS_TOKEN}
  names: [search, fetch]

tasks:
  base_url: https://tasks.example.com
  token: ${HIVE_TASKS_TOKEN}

agents:
  checkpoint_every: 10
  retry_ceiling: 3
  progress_interval: 30s
  idle_eviction: 15m

guardrails:
  policy_path: ""

logging:
  level: info
  format: text

metrics:
  enabled: true
  path: /metrics
`

func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Wrote starter config to %s\n", configPath)
	fmt.Println("Edit the auth and provider sections before running serve.")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator unreachable: %w", err)
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
		Actors int    `json:"actors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ ")
	fmt.Printf("orchestrator %s, %d active actors\n", health.Status, health.Actors)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{level: level}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	fmt.Println(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{
		level:  h.level,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}
