package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"

	"github.com/skywatch/apod-pipeline/internal/apod"
	"github.com/skywatch/apod-pipeline/internal/config"
	"github.com/skywatch/apod-pipeline/internal/database"
	"github.com/skywatch/apod-pipeline/internal/logger"
	"github.com/skywatch/apod-pipeline/internal/pipeline"
	"github.com/skywatch/apod-pipeline/internal/snapshot"
)

// deps bundles the wired pipeline dependencies for a command invocation.
type deps struct {
	cfg        *config.Config
	log        logger.Logger
	db         *sqlx.DB
	records    *database.RecordRepository
	snapshots  *snapshot.Repository
	controller *pipeline.Controller
}

// close releases all held resources.
func (d *deps) close() {
	if d.snapshots != nil {
		_ = d.snapshots.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
	if d.log != nil {
		_ = d.log.Sync()
	}
}

// loadConfigAndLogger loads the validated configuration and builds the
// logger. Commands that need no stores (e.g. migrate) use this directly.
func loadConfigAndLogger() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.App.Debug,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(logger.String("service", cfg.App.Name))

	return cfg, log, nil
}

// buildDeps wires the full pipeline: config, logger, database, snapshot
// repository and controller. Callers must invoke close when done.
func buildDeps() (*deps, error) {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	db, err := database.NewPostgresConnection(cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Name),
	)

	var remote snapshot.Pusher
	if cfg.Snapshot.Remote.Enabled {
		r, remoteErr := snapshot.NewRemote(snapshot.RemoteConfig{
			Endpoint:  cfg.Snapshot.Remote.Endpoint,
			AccessKey: cfg.Snapshot.Remote.AccessKey,
			SecretKey: cfg.Snapshot.Remote.SecretKey,
			Bucket:    cfg.Snapshot.Remote.Bucket,
			UseSSL:    cfg.Snapshot.Remote.UseSSL,
		}, log)
		if remoteErr != nil {
			_ = db.Close()
			return nil, remoteErr
		}
		remote = r
	}

	snapshots, err := snapshot.Open(snapshot.Config{
		Path:       cfg.Snapshot.Path,
		WorkDir:    cfg.Snapshot.WorkDir,
		ExportFile: cfg.Snapshot.ExportFile,
	}, remote, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	records := database.NewRecordRepository(db)

	fetcher := apod.NewClient(apod.ClientConfig{
		BaseURL:     cfg.API.BaseURL,
		APIKey:      cfg.API.Key,
		Timeout:     cfg.API.Timeout,
		RawDumpPath: cfg.API.RawDumpPath,
	}, log)

	controller := pipeline.NewController(fetcher, records, snapshots, log)

	return &deps{
		cfg:        cfg,
		log:        log,
		db:         db,
		records:    records,
		snapshots:  snapshots,
		controller: controller,
	}, nil
}
