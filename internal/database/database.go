package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	sqlitecgo "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omegabot/omegabot/internal/models"
)

var DB *gorm.DB

// Init opens the database and migrates the schema. Supported types are
// "sqlite" (pure Go driver), "sqlite3" (cgo driver) and "postgres".
func Init(dbType, dsn string) error {
	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite3":
		dialector = sqlitecgo.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.GuildConfig{},
		&models.InfoRecord{},
		&models.ServiceStatus{},
		&models.SystemStat{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	DB = db
	log.Printf("Database initialized (%s)", dbType)
	return nil
}

func Close() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("Error getting underlying database handle: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// WithRetry retries an operation a few times when sqlite reports a transient
// lock, with a short backoff between attempts.
func WithRetry(op func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil || !isRetryable(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return err
}

func isRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
