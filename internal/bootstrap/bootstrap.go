// Package bootstrap wires the device components for the callpause service.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/callpause/internal/autopause"
	"github.com/maauso/callpause/internal/callstate"
	"github.com/maauso/callpause/internal/config"
	"github.com/maauso/callpause/internal/host"
	"github.com/maauso/callpause/internal/permission"
	"github.com/maauso/callpause/internal/playback"
	"github.com/maauso/callpause/internal/server"
	"github.com/maauso/callpause/internal/setting"
	"github.com/maauso/callpause/internal/storage"
)

const (
	// processName identifies the service when its calling identity is cleared.
	processName = "callpause"
	// controlCaller is the identity the control API acts under.
	controlCaller = "control-api"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Storage    storage.Storage
	Settings   *setting.Store
	Permission *permission.Toggle
	Phone      *callstate.Simulator
	Listeners  *callstate.Manager
	Engine     *autopause.Engine
	Playback   *playback.Controller
	Host       *host.Service
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newDependencies(ctx, cfg, store, logger)
}

func newDependencies(ctx context.Context, cfg *config.Config, store storage.Storage, logger *slog.Logger) (*Dependencies, error) {
	// Restore persisted settings
	settings := setting.NewStore(setting.Known(),
		setting.WithPersistence(store, cfg.SettingsKey),
		setting.WithLogger(logger),
	)
	if err := settings.Load(ctx); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	// Simulated platform services
	perm := permission.NewToggle(cfg.PermissionGranted)
	identity := permission.NewProcessIdentity(processName, controlCaller)
	phone := callstate.NewSimulator()

	source := callstate.NewSource(phone, cfg.PlatformAPILevel, cfg.CallbackAPILevel)
	listeners := callstate.NewManager(source, logger)
	logger.Info("call state mechanism selected",
		slog.String("mechanism", string(source.Mechanism())),
		slog.Int("platform_api_level", cfg.PlatformAPILevel),
		slog.Int("callback_api_level", cfg.CallbackAPILevel),
	)

	engine := autopause.NewEngine(listeners, perm,
		autopause.WithIdentityScope(identity),
		autopause.WithLogger(logger),
	)
	player := playback.NewController(logger)
	svc := host.NewService(settings, engine, player.OnDecision, logger)

	return &Dependencies{
		Storage:    store,
		Settings:   settings,
		Permission: perm,
		Phone:      phone,
		Listeners:  listeners,
		Engine:     engine,
		Playback:   player,
		Host:       svc,
	}, nil
}

// ServerDeps returns the components the HTTP handlers need.
func (d *Dependencies) ServerDeps() server.Deps {
	return server.Deps{
		Settings:   d.Settings,
		Permission: d.Permission,
		Phone:      d.Phone,
		Host:       d.Host,
		Playback:   d.Playback,
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("data_dir", localStore.Dir()),
	)
	return localStore, nil
}
