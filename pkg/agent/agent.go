// Package agent wires the deckd services together and runs them.
package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/deckbridge/deckd/internal/catalog"
	"github.com/deckbridge/deckd/internal/configsvc"
	"github.com/deckbridge/deckd/internal/decksvc"
	"github.com/deckbridge/deckd/internal/hidsvc"
	"github.com/deckbridge/deckd/internal/hostsvc"
)

type Agent struct {
	config     Config
	fileConfig FileConfig

	log       *zap.Logger
	db        *badger.DB
	store     *decksvc.Store
	configSvc *configsvc.Service
	hidSvc    *hidsvc.Service
	hostSvc   *hostsvc.Service
	deckSvc   *decksvc.Service
}

func NewAgent(config Config) (*Agent, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	fileCfg, err := loadFileConfig(config.ConfigFile)
	if err != nil {
		return nil, err
	}

	table, err := applyOverrides(catalog.Default(), fileCfg.Overrides)
	if err != nil {
		return nil, err
	}

	pollInterval, err := parseDuration(fileCfg.HID.PollInterval, time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := parseDuration(fileCfg.Sessions.ReadTimeout, 50*time.Millisecond)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration(fileCfg.Sessions.ShutdownTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}
	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	transport, err := hidsvc.NewHidapiTransport()
	if err != nil {
		db.Close()
		return nil, err
	}

	configSvc := configsvc.New(logger.Named("config"))
	hidSvc := hidsvc.New(logger.Named("hid"), transport, table.Queries(),
		hidsvc.WithPollInterval(pollInterval))
	hostSvc := hostsvc.New(logger.Named("host"), fileCfg.Host.URL)
	store := decksvc.NewStore(db, time.Now)

	deckOpts := []decksvc.Option{
		decksvc.WithReadTimeout(readTimeout),
		decksvc.WithShutdownTimeout(shutdownTimeout),
	}
	if fileCfg.Sessions.DefaultBrightness != nil {
		deckOpts = append(deckOpts, decksvc.WithDefaultBrightness(*fileCfg.Sessions.DefaultBrightness))
	}
	deckSvc := decksvc.New(logger.Named("deck"), table, hidSvc, hostSvc, store, deckOpts...)
	hostSvc.SetHandler(deckSvc)

	return &Agent{
		config:     config,
		fileConfig: fileCfg,
		log:        logger,
		db:         db,
		store:      store,
		configSvc:  configSvc,
		hidSvc:     hidSvc,
		hostSvc:    hostSvc,
		deckSvc:    deckSvc,
	}, nil
}

func (a *Agent) Close() error {
	return a.db.Close()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the agent and blocks until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.watchConfig(groupCtx)
	})
	group.Go(func() error {
		return a.hidSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.hostSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.deckSvc.Start(groupCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

// watchConfig re-applies variant code-map overrides when the config file
// changes. Sessions admitted after the change pick up the new table.
func (a *Agent) watchConfig(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-a.configSvc.Ready():
	}
	_, err := configsvc.Register(a.configSvc, a.config.ConfigFile, defaultFileConfig(), func(cfg FileConfig, err error) {
		if err != nil {
			a.log.Error("failed to reload config", zap.Error(err))
			return
		}
		table, err := applyOverrides(catalog.Default(), cfg.Overrides)
		if err != nil {
			a.log.Error("rejecting config change", zap.Error(err))
			return
		}
		a.deckSvc.UpdateTable(table)
	})
	if err != nil {
		// A missing config file is fine; the agent runs on defaults.
		a.log.Debug("config file not watched", zap.Error(err))
	}
	return nil
}

// Devices lists every device the agent has ever seen.
func (a *Agent) Devices() ([]decksvc.DeviceRecord, error) {
	return a.store.List()
}
