package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agvtools/agv-instances-cli/internal/adapters/procmgr"
	instancesrender "github.com/agvtools/agv-instances-cli/internal/adapters/render/instances"
	tomlrepo "github.com/agvtools/agv-instances-cli/internal/adapters/repo/toml"
	"github.com/agvtools/agv-instances-cli/internal/application"
	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

const (
	logLevelKey       = "log.level"
	logFormatKey      = "log.format"
	defaultDataDirKey = "app.default_user_data_dir"
	pollIntervalKey   = "poll.interval"
	categoriesKey     = "recommend.categories"

	defaultPollInterval = 3 * time.Second
)

type app struct {
	registry  *application.RegistryService
	binding   *application.BindingService
	lifecycle *application.LifecycleService

	repo      ports.InstanceRepository
	directory ports.AccountDirectory
	proc      ports.ProcessController

	renderOverview func(instancesrender.Overview, instancesrender.RenderOptions) (string, error)

	categories   []domain.ModelCategory
	pollInterval time.Duration
	now          func() time.Time
}

func wireApp() (*app, error) {
	cfg := viper.New()

	repo, err := tomlrepo.NewRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire instance repository: %w", err)
	}

	initLogging(cfg)

	directory, err := tomlrepo.NewAccountDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire account directory: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetDefault(defaultDataDirKey, filepath.Join(homeDir, ".config", "Antigravity"))
	cfg.SetDefault(pollIntervalKey, defaultPollInterval)

	proc := procmgr.NewController(cfg)
	locks := application.NewInstanceLocks()
	registry := application.NewRegistryService(repo, ports.SystemClock{}, locks, cfg.GetString(defaultDataDirKey))
	binding := application.NewBindingService(repo, directory, proc, registry)
	lifecycle := application.NewLifecycleService(repo, proc, locks)

	categories, err := loadCategories(cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		registry:       registry,
		binding:        binding,
		lifecycle:      lifecycle,
		repo:           repo,
		directory:      directory,
		proc:           proc,
		renderOverview: instancesrender.Render,
		categories:     categories,
		pollInterval:   cfg.GetDuration(pollIntervalKey),
		now:            time.Now,
	}, nil
}

func initLogging(cfg *viper.Viper) {
	cfg.SetDefault(logLevelKey, "info")
	cfg.SetDefault(logFormatKey, "text")

	var level slog.Level
	switch strings.ToLower(cfg.GetString(logLevelKey)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.GetString(logFormatKey)) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

type categoryConfig struct {
	Name           string  `mapstructure:"name"`
	PrimaryModel   string  `mapstructure:"primary_model"`
	SecondaryModel string  `mapstructure:"secondary_model"`
	PrimaryWeight  float64 `mapstructure:"primary_weight"`
}

// loadCategories reads the recommendation categories from config, falling back
// to the stock Gemini/Claude pair.
func loadCategories(cfg *viper.Viper) ([]domain.ModelCategory, error) {
	if !cfg.IsSet(categoriesKey) {
		return defaultCategories(), nil
	}

	var raw []categoryConfig
	if err := cfg.UnmarshalKey(categoriesKey, &raw); err != nil {
		return nil, fmt.Errorf("decode recommendation categories: %w", err)
	}
	if len(raw) == 0 {
		return defaultCategories(), nil
	}

	categories := make([]domain.ModelCategory, 0, len(raw))
	for _, entry := range raw {
		category := domain.ModelCategory{
			Name:           entry.Name,
			PrimaryModel:   entry.PrimaryModel,
			SecondaryModel: entry.SecondaryModel,
			PrimaryWeight:  entry.PrimaryWeight,
		}
		if err := category.Validate(); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}

	return categories, nil
}

func defaultCategories() []domain.ModelCategory {
	return []domain.ModelCategory{
		{Name: "gemini", PrimaryModel: "gemini-3-pro", SecondaryModel: "gemini-3-flash", PrimaryWeight: 0.7},
		{Name: "claude", PrimaryModel: "claude-sonnet-4-5"},
	}
}
