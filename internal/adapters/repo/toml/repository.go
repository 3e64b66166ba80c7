package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

const (
	configName          = "config"
	configType          = "toml"
	instancesPathKey    = "instances.path"
	instancesFileMode   = 0o600
	instancesDirMode    = 0o700
	instancesConfigDir  = ".antigravity_tools"
	instancesConfigFile = "instances.toml"
	tempFilePattern     = ".instances-*.toml.tmp"
)

type Repository struct {
	instancesPath string
	mu            *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.InstanceRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, instancesConfigDir, instancesConfigFile)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, instancesConfigDir))
	cfg.SetDefault(instancesPathKey, defaultPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	instancesPath := cfg.GetString(instancesPathKey)
	if instancesPath == "" {
		return nil, errors.New("instances path is empty")
	}
	instancesPath, err = normalizePath(instancesPath)
	if err != nil {
		return nil, err
	}

	return &Repository{instancesPath: instancesPath, mu: lockForPath(instancesPath)}, nil
}

func (r *Repository) Save(ctx context.Context, instance domain.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()

	encoded := toSchema(instance)
	updated := false
	for i := range file.Instances {
		if file.Instances[i].ID == encoded.ID {
			file.Instances[i] = encoded
			updated = true
			break
		}
	}

	if !updated {
		file.Instances = append(file.Instances, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) GetByID(ctx context.Context, id domain.InstanceID) (domain.Instance, error) {
	if err := ctx.Err(); err != nil {
		return domain.Instance{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Instance{}, err
	}

	for _, entry := range file.Instances {
		if entry.ID == string(id) {
			return fromSchema(entry), nil
		}
	}

	return domain.Instance{}, domain.ErrInstanceNotFound
}

func (r *Repository) List(ctx context.Context) ([]domain.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	instances := make([]domain.Instance, 0, len(file.Instances))
	for _, entry := range file.Instances {
		instances = append(instances, fromSchema(entry))
	}

	return instances, nil
}

func (r *Repository) Delete(ctx context.Context, id domain.InstanceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()

	kept := file.Instances[:0]
	found := false
	for _, entry := range file.Instances {
		if entry.ID == string(id) {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return domain.ErrInstanceNotFound
	}
	file.Instances = kept

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.instancesPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read instances file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode instances file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.instancesPath), instancesDirMode); err != nil {
		return fmt.Errorf("create instances directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode instances file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.instancesPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp instances file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp instances file: %w", err)
	}

	if err := tempFile.Chmod(instancesFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp instances file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp instances file: %w", err)
	}

	if err := os.Rename(tempName, r.instancesPath); err != nil {
		return fmt.Errorf("replace instances file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(r.instancesPath, instancesFileMode); err != nil {
		return fmt.Errorf("chmod instances file: %w", err)
	}

	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func toSchema(instance domain.Instance) instanceSchema {
	accountIDs := make([]string, 0, len(instance.AccountIDs))
	for _, id := range instance.AccountIDs {
		accountIDs = append(accountIDs, string(id))
	}

	return instanceSchema{
		ID:               string(instance.ID),
		Name:             instance.Name,
		UserDataDir:      instance.UserDataDir,
		Executable:       instance.Executable,
		ExtraArgs:        instance.ExtraArgs,
		AccountIDs:       accountIDs,
		CurrentAccountID: string(instance.CurrentAccountID),
		IsDefault:        instance.IsDefault,
		LastLaunchArgs:   instance.LastLaunchArgs,
		LastRootPID:      instance.LastRootPID,
		CreatedAt:        formatTime(instance.CreatedAt),
	}
}

func fromSchema(schema instanceSchema) domain.Instance {
	accountIDs := make([]domain.AccountID, 0, len(schema.AccountIDs))
	for _, id := range schema.AccountIDs {
		accountIDs = append(accountIDs, domain.AccountID(id))
	}

	// Older files may carry launch arguments captured from a helper child
	// process. Those are unusable for a relaunch, so they are dropped on load.
	launchArgs := schema.LastLaunchArgs
	if containsHelperFlag(launchArgs) {
		launchArgs = nil
	}

	return domain.Instance{
		ID:               domain.InstanceID(schema.ID),
		Name:             schema.Name,
		UserDataDir:      schema.UserDataDir,
		Executable:       schema.Executable,
		ExtraArgs:        schema.ExtraArgs,
		AccountIDs:       accountIDs,
		CurrentAccountID: domain.AccountID(schema.CurrentAccountID),
		IsDefault:        schema.IsDefault,
		LastLaunchArgs:   launchArgs,
		LastRootPID:      schema.LastRootPID,
		CreatedAt:        parseTime(schema.CreatedAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
