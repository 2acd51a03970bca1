package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
	"github.com/3mpowered/dataverse-convenience/internal/auth/azuread"
	"github.com/3mpowered/dataverse-convenience/internal/config"
	"github.com/3mpowered/dataverse-convenience/internal/dataverse"
	"github.com/3mpowered/dataverse-convenience/internal/db"
	"github.com/3mpowered/dataverse-convenience/internal/export"
	"github.com/3mpowered/dataverse-convenience/internal/history"
	"github.com/3mpowered/dataverse-convenience/internal/lock"
	"github.com/3mpowered/dataverse-convenience/internal/storage"
	"github.com/3mpowered/dataverse-convenience/internal/telemetry"

	// Export backends register themselves with the storage factory.
	_ "github.com/3mpowered/dataverse-convenience/internal/storage/azure"
	_ "github.com/3mpowered/dataverse-convenience/internal/storage/gcs"
	_ "github.com/3mpowered/dataverse-convenience/internal/storage/local"
	_ "github.com/3mpowered/dataverse-convenience/internal/storage/s3"
)

// newHTTPClient returns the authorized client used for Web API calls.
// Tests replace it to talk to a fake environment.
var newHTTPClient = func(ctx context.Context, cfg *config.DataverseConfig) (*http.Client, error) {
	provider, err := azuread.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return provider.Client(ctx, nil), nil
}

// loadConfig reads the configuration for cmd and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return loadWith(cmd, config.Load)
}

// loadLocalConfig loads the configuration of a command that only uses local
// resources such as the history database.
func loadLocalConfig(cmd *cobra.Command) (*config.Config, error) {
	return loadWith(cmd, config.LoadLocal)
}

func loadWith(cmd *cobra.Command, load func(string, *pflag.FlagSet) (*config.Config, error)) (*config.Config, error) {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")
	cfg, err := load(path, flags)
	if err != nil {
		return nil, err
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	return cfg, nil
}

// env holds the collaborators of one auditing command.
type env struct {
	cfg      *config.Config
	service  *auditing.Service
	exporter *export.Exporter
	// runs and locker are nil when history or the run lock is disabled.
	runs   *history.Repository
	locker *lock.Locker

	closers []func() error
}

func newEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	e := &env{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			e.close()
		}
	}()

	var rdb *redis.Client
	if cfg.Lock.Enabled || cfg.Dataverse.SharedRateLimit {
		rdb = lock.NewClient(&cfg.Lock)
		e.closers = append(e.closers, rdb.Close)
	}
	if cfg.Lock.Enabled {
		e.locker = lock.New(rdb, cfg.Lock.TTL)
	}

	client, err := newDataverseClient(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}
	e.service = auditing.NewService(dataverse.NewMetadataProvider(client), dataverse.NewMutator(client))

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	var store storage.Storage
	if format != export.FormatNone {
		store, err = storage.NewStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize export storage: %w", err)
		}
	}
	e.exporter = export.New(store, format)

	if cfg.History.Enabled {
		dbx, err := openHistory(ctx, &cfg.History.Database)
		if err != nil {
			slog.Warn("history: disabled for this run", "error", err)
		} else {
			e.closers = append(e.closers, dbx.Close)
			e.runs = history.NewRepository(dbx)
		}
	}

	ok = true
	return e, nil
}

func newDataverseClient(ctx context.Context, cfg *config.Config, rdb *redis.Client) (*dataverse.Client, error) {
	httpClient, err := newHTTPClient(ctx, &cfg.Dataverse)
	if err != nil {
		return nil, err
	}
	opts := dataverse.Options{
		URL:               cfg.Dataverse.URL,
		APIVersion:        cfg.Dataverse.APIVersion,
		HTTPClient:        httpClient,
		Timeout:           cfg.Dataverse.Timeout,
		RequestsPerSecond: cfg.Dataverse.RequestsPerSecond,
		Burst:             cfg.Dataverse.Burst,
	}
	if cfg.Dataverse.SharedRateLimit {
		limiter, err := dataverse.NewRedisLimiter(rdb, cfg.Dataverse.Host(), cfg.Dataverse.RequestsPerSecond, cfg.Dataverse.Burst)
		if err != nil {
			return nil, err
		}
		opts.Limiter = limiter
	}
	return dataverse.NewClient(opts)
}

// openHistory connects to the history database and brings its schema up to date.
func openHistory(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	dbx, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(dbx.DB); err != nil {
		dbx.Close()
		return nil, err
	}
	return dbx, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Debug("cli: close failed", "error", err)
		}
	}
	e.closers = nil
}

// record stores a change report when history is enabled. Failures are logged only.
func (e *env) record(ctx context.Context, operation, solution string, report *auditing.ChangedAuditSettings) {
	if e.runs == nil {
		return
	}
	run, err := history.Summarize(operation, solution, e.cfg.Dataverse.Host(), report)
	if err == nil {
		err = e.runs.Record(ctx, run)
	}
	if err != nil {
		slog.Error("history: failed to record run", "operation", operation, "solution", solution, "error", err)
		return
	}
	slog.Info("history: run recorded", "id", run.ID)
}

// acquire takes the run lock of the environment. release is a no-op when the
// lock is disabled.
func (e *env) acquire(ctx context.Context) (release func(), err error) {
	if e.locker == nil {
		return func() {}, nil
	}
	lk, err := e.locker.Acquire(ctx, lock.Key(e.cfg.Dataverse.Host()))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("another enable or disable run is in progress for %s: %w", e.cfg.Dataverse.Host(), err)
		}
		return nil, err
	}
	stop := lk.KeepAlive(ctx)
	return func() {
		stop()
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("lock: release failed", "key", lk.Key(), "error", err)
		}
	}, nil
}

// pushMetrics sends the run metrics when a Pushgateway is configured.
func pushMetrics(ctx context.Context, cfg *config.Config) {
	m := cfg.Telemetry.Metrics
	if !m.Enabled {
		return
	}
	if err := telemetry.Push(ctx, m.PushgatewayURL, m.Job); err != nil {
		slog.Warn("telemetry: metrics push failed", "error", err)
	}
}
