package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/agvtools/agv-instances-cli/internal/domain"
	"github.com/agvtools/agv-instances-cli/internal/ports"
)

const (
	accountsPathKey    = "accounts.path"
	accountsConfigFile = "accounts.toml"
)

// AccountDirectory reads the account roster written by the account tooling.
// This side never mutates it, so only read locking is needed.
type AccountDirectory struct {
	accountsPath string
	mu           *sync.RWMutex
}

var _ ports.AccountDirectory = (*AccountDirectory)(nil)

func NewAccountDirectory(cfg *viper.Viper) (*AccountDirectory, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	path := cfg.GetString(accountsPathKey)
	if path == "" {
		path = filepath.Join(homeDir, instancesConfigDir, accountsConfigFile)
	}

	path, err = normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &AccountDirectory{accountsPath: path, mu: lockForPath(path)}, nil
}

func (d *AccountDirectory) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	file, err := d.readSchema()
	if err != nil {
		return domain.Account{}, err
	}

	for _, entry := range file.Accounts {
		if entry.ID == string(id) {
			return fromAccountSchema(entry), nil
		}
	}

	return domain.Account{}, domain.ErrAccountNotFound
}

func (d *AccountDirectory) List(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	file, err := d.readSchema()
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		accounts = append(accounts, fromAccountSchema(entry))
	}

	return accounts, nil
}

func (d *AccountDirectory) readSchema() (accountsFileSchema, error) {
	data, err := os.ReadFile(d.accountsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return accountsFileSchema{}, nil
		}
		return accountsFileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return accountsFileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return accountsFileSchema{}, err
	}

	return file, nil
}

func fromAccountSchema(schema accountSchema) domain.Account {
	return domain.Account{
		ID:    domain.AccountID(schema.ID),
		Email: schema.Email,
		Quota: fromQuotaSchema(schema.Quota),
	}
}

func fromQuotaSchema(schema *quotaSchema) *domain.QuotaSnapshot {
	if schema == nil {
		return nil
	}

	models := make([]domain.QuotaModel, 0, len(schema.Models))
	for _, model := range schema.Models {
		models = append(models, domain.QuotaModel{
			Name:       model.Name,
			Percentage: model.Percentage,
			ResetAt:    parseTime(model.ResetAt),
		})
	}

	return &domain.QuotaSnapshot{Tier: schema.Tier, Models: models}
}
