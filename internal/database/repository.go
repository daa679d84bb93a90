package database

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/omegabot/omegabot/internal/models"
)

// Repository handles database operations for guild configurations, info
// snippets and service stats.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository instance bound to the global handle.
func NewRepository() *Repository {
	return &Repository{db: DB}
}

// NewRepositoryWithDB creates a repository bound to a specific handle.
func NewRepositoryWithDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetGuildConfig retrieves the configuration for a guild.
// Returns (nil, nil) if no record is found, which is not an error.
func (r *Repository) GetGuildConfig(guildID string) (*models.GuildConfig, error) {
	var cfg models.GuildConfig
	err := WithRetry(func() error {
		result := r.db.Where("guild_id = ?", guildID).First(&cfg)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		return result.Error
	})
	if err != nil || cfg.GuildID == "" {
		return nil, err
	}
	return &cfg, nil
}

// SaveGuildConfig creates or updates a guild configuration.
func (r *Repository) SaveGuildConfig(cfg *models.GuildConfig) error {
	return WithRetry(func() error {
		return r.db.Save(cfg).Error
	})
}

// DeleteGuildConfig removes the configuration for a guild.
func (r *Repository) DeleteGuildConfig(guildID string) error {
	return WithRetry(func() error {
		return r.db.Delete(&models.GuildConfig{}, "guild_id = ?", guildID).Error
	})
}

// GetInfo retrieves an info snippet by guild and name. Names are matched
// case-insensitively; returns (nil, nil) when absent.
func (r *Repository) GetInfo(guildID, name string) (*models.InfoRecord, error) {
	name = strings.ToLower(name)
	var record models.InfoRecord
	err := WithRetry(func() error {
		result := r.db.Where("guild_id = ? AND name = ?", guildID, name).First(&record)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		return result.Error
	})
	if err != nil || record.GuildID == "" {
		return nil, err
	}
	return &record, nil
}

// AppendInfo adds a text entry to a snippet, creating a scalar record when the
// name is new and promoting scalar to list on the second entry.
func (r *Repository) AppendInfo(guildID, name, text string) error {
	name = strings.ToLower(name)
	record, err := r.GetInfo(guildID, name)
	if err != nil {
		return err
	}
	if record == nil {
		record = &models.InfoRecord{GuildID: guildID, Name: name}
	}
	record.Data.Append(text)
	return WithRetry(func() error {
		return r.db.Save(record).Error
	})
}

// SaveInfo writes a snippet record as-is, replacing any existing value.
func (r *Repository) SaveInfo(record *models.InfoRecord) error {
	record.Name = strings.ToLower(record.Name)
	return WithRetry(func() error {
		return r.db.Save(record).Error
	})
}

// RemoveInfo hard-deletes a snippet. Reports an error when nothing matched.
func (r *Repository) RemoveInfo(guildID, name string) error {
	name = strings.ToLower(name)
	return WithRetry(func() error {
		result := r.db.Delete(&models.InfoRecord{}, "guild_id = ? AND name = ?", guildID, name)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.New("info not found")
		}
		return nil
	})
}

// ListInfoNames returns all snippet names stored for a guild.
func (r *Repository) ListInfoNames(guildID string) ([]string, error) {
	var names []string
	err := WithRetry(func() error {
		return r.db.Model(&models.InfoRecord{}).
			Where("guild_id = ?", guildID).
			Order("name").
			Pluck("name", &names).Error
	})
	return names, err
}

// DeleteGuildData removes everything stored for a guild: configuration and
// info snippets. Used when the bot is removed from a guild.
func (r *Repository) DeleteGuildData(guildID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.InfoRecord{}, "guild_id = ?", guildID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GuildConfig{}, "guild_id = ?", guildID).Error
	})
}

// UpsertServiceStatus records a heartbeat row for this process.
func (r *Repository) UpsertServiceStatus(status *models.ServiceStatus) error {
	return WithRetry(func() error {
		return r.db.Save(status).Error
	})
}

// AddToStat increments a system counter by the given amount, creating the row
// on first use.
func (r *Repository) AddToStat(key string, delta int64) error {
	if delta == 0 {
		return nil
	}
	return WithRetry(func() error {
		result := r.db.Model(&models.SystemStat{}).
			Where("stat_key = ?", key).
			Updates(map[string]any{
				"stat_value": gorm.Expr("stat_value + ?", delta),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.db.Create(&models.SystemStat{
				StatKey:   key,
				StatValue: delta,
				UpdatedAt: time.Now(),
			}).Error
		}
		return nil
	})
}

// CountGuilds returns the number of guilds with a stored configuration.
func (r *Repository) CountGuilds() (int64, error) {
	var count int64
	err := WithRetry(func() error {
		return r.db.Model(&models.GuildConfig{}).Count(&count).Error
	})
	return count, err
}
