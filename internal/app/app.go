// Package app wires configuration, storage, the Discord boundary, and the
// protection engine into runnable commands. It is the only package that
// knows how to assemble the full daemon.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"

	"guard-go/internal/archive"
	"guard-go/internal/config"
	"guard-go/internal/discord"
	"guard-go/internal/guard"
	"guard-go/internal/metrics"
	"guard-go/internal/model"
	"guard-go/internal/store"
	"guard-go/internal/store/migrations"
)

// App is the application layer between the CLI and the guard service. It
// constructs all dependencies from config and manages their lifecycle on
// Close. REST-only commands never open the gateway connection; only
// RunDaemon does.
type App struct {
	cfg     *config.Config
	log     guard.Logger
	logFile *os.File

	store   *store.SQLiteStore
	clock   guard.Clock
	idgen   guard.IDGenerator
	limiter *guard.Limiter
	policy  *guard.Policy

	session  *discordgo.Session
	gateway  *discord.Gateway
	alerts   *guard.Alerter
	engine   *guard.Engine
	service  *guard.Service
	registry *prometheus.Registry
	counters *metrics.Set
}

// NewApp creates an App with storage and policy wired. operation identifies
// the CLI command being run; it tags every log line. The caller must call
// Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	runID := fmt.Sprintf("%s-%s", operation, time.Now().UTC().Format("20060102T150405Z"))
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	st, err := newStore(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	clock := guard.RealClock{}
	limiter := guard.NewLimiter(clock)
	policy := guard.NewPolicy(st, cfg.GuildID, cfg.Owners, log)

	return &App{
		cfg:     cfg,
		log:     log,
		logFile: logFile,
		store:   st,
		clock:   clock,
		idgen:   guard.UUIDGenerator{},
		limiter: limiter,
		policy:  policy,
	}, nil
}

// newStore opens the metadata database and applies pending migrations.
func newStore(cfg config.DatabaseConfig) (*store.SQLiteStore, error) {
	path := ":memory:"
	if cfg.Type == "sqlite" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, "guardd.db")
	}

	db, err := store.OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return store.NewSQLiteStoreFromDB(db), nil
}

// Connect builds the Discord-facing half: session, gateway, alerting, engine,
// and the snapshot service. The gateway websocket is not opened here; REST
// commands work with the token alone.
func (a *App) Connect() error {
	session, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	session.Identify.Intents = discord.Intents

	a.session = session
	a.gateway = discord.NewGateway(session, a.cfg.GuildID, a.log)

	var notifier guard.Notifier
	if a.cfg.AlertChannel != "" {
		notifier = discord.NewChannelNotifier(session, a.cfg.AlertChannel)
	}
	a.alerts = guard.NewAlerter(notifier, a.limiter, a.clock, a.idgen, a.log)
	a.alerts.SetThrottle(a.cfg.Limits.AlertLimit, a.cfg.Limits.AlertWindow.Duration())

	a.registry = prometheus.NewRegistry()
	a.counters = metrics.New(a.registry)

	punisher := guard.NewPunisher(a.gateway, a.alerts, a.log)
	attributor := guard.NewAttributor(a.gateway, a.log)
	a.engine = guard.NewEngine(a.gateway, a.policy, a.limiter, punisher,
		attributor, a.alerts, a.log,
		guard.WithMetrics(a.counters),
		guard.WithBanBurst(a.cfg.Limits.BanBurstLimit, a.cfg.Limits.BanBurstWindow.Duration()))

	agents := discord.NewHelperPool(a.cfg.HelperTokens, a.cfg.GuildID, a.log)
	a.service = guard.NewService(a.gateway, a.store, agents, a.alerts,
		a.log, a.clock, a.counters)

	return nil
}

// RunDaemon opens the gateway connection and runs the protection engine and
// capture loop until ctx is cancelled.
func (a *App) RunDaemon(ctx context.Context) error {
	if a.engine == nil {
		return fmt.Errorf("daemon not connected")
	}

	dispatcher := discord.NewDispatcher(a.cfg.GuildID, a.engine, a.log)
	dispatcher.Register(a.session)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("opening gateway connection: %w", err)
	}
	defer a.session.Close()

	if err := dispatcher.Prime(ctx, a.session); err != nil {
		return fmt.Errorf("priming event caches: %w", err)
	}

	a.engine.Start(ctx)
	defer a.engine.Stop()

	interval := a.cfg.Capture.Interval.Duration()
	if interval <= 0 {
		interval = guard.DefaultCaptureInterval
	}
	go a.service.RunCaptureLoop(ctx, interval)

	var metricsSrv *http.Server
	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.registry))
		metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("metrics server failed", "error", err)
			}
		}()
		a.log.Info("metrics listening", "addr", addr)
	}

	a.log.Info("guardian running", "guild", a.cfg.GuildID)
	<-ctx.Done()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// CaptureNow takes one snapshot of the guild immediately.
func (a *App) CaptureNow(ctx context.Context) (*guard.CaptureSummary, error) {
	if a.service == nil {
		return nil, fmt.Errorf("not connected")
	}
	return a.service.Capture(ctx)
}

// RestoreRoles rebuilds deleted roles from the latest snapshots.
func (a *App) RestoreRoles(ctx context.Context) (*guard.RestoreSummary, error) {
	if a.service == nil {
		return nil, fmt.Errorf("not connected")
	}
	return a.service.RestoreRoles(ctx)
}

// RestoreChannels rebuilds deleted channels from the latest snapshots.
func (a *App) RestoreChannels(ctx context.Context) (*guard.RestoreSummary, error) {
	if a.service == nil {
		return nil, fmt.Errorf("not connected")
	}
	return a.service.RestoreChannels(ctx)
}

// ExportSnapshots writes the stored snapshots to the configured archive
// vault as one encrypted bundle. Returns the vault key written.
func (a *App) ExportSnapshots(ctx context.Context) (string, error) {
	vault, err := archive.NewVaultFromConfig(ctx, a.cfg.Archive)
	if err != nil {
		return "", fmt.Errorf("creating archive vault: %w", err)
	}
	if vault == nil {
		return "", fmt.Errorf("no archive backend configured")
	}
	if err := vault.ValidateSetup(ctx); err != nil {
		return "", fmt.Errorf("validating archive vault: %w", err)
	}

	roles, err := a.store.RoleSnapshots(ctx)
	if err != nil {
		return "", err
	}
	channels, err := a.store.ChannelSnapshots(ctx)
	if err != nil {
		return "", err
	}
	if len(roles) == 0 && len(channels) == 0 {
		return "", fmt.Errorf("no snapshots stored yet; run backup now first")
	}

	encryptor := archive.NewAgeEncryptor(a.cfg.Encryption)
	writer := archive.NewWriter(vault, encryptor, a.cfg.GuildID)
	key, err := writer.Export(ctx, roles, channels, a.clock.Now())
	if err != nil {
		return "", err
	}

	a.log.Info("snapshots exported", "key", key,
		"roles", len(roles), "channels", len(channels))
	return key, nil
}

// SetupEncryption generates the age key pair used for exports.
func (a *App) SetupEncryption(passphrase string) error {
	return archive.NewAgeEncryptor(a.cfg.Encryption).Setup(passphrase)
}

// Trust operations

func (a *App) TrustAdd(ctx context.Context, scope guard.Scope, ref guard.PrincipalRef) (guard.Outcome, error) {
	return a.policy.Add(ctx, scope, ref)
}

func (a *App) TrustRemove(ctx context.Context, scope guard.Scope, ref guard.PrincipalRef) (guard.Outcome, error) {
	return a.policy.Remove(ctx, scope, ref)
}

func (a *App) TrustList(ctx context.Context) (*model.TrustRecord, error) {
	return a.policy.List(ctx)
}

// SuperOwners returns the configured always-trusted principals.
func (a *App) SuperOwners() []string {
	return a.cfg.Owners
}

// Close releases storage and log resources.
func (a *App) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
