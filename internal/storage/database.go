package storage

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tuneshare/internal/config"
	"tuneshare/internal/logging"
	"tuneshare/internal/models"
)

// InitDB initializes the database connection using the provided configuration.
// TranslateError is enabled so unique index violations surface as gorm.ErrDuplicatedKey
// on every supported driver.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		dsn := PostgresDSN(cfg)
		logrus.WithFields(logrus.Fields{
			"host":   cfg.Host,
			"port":   cfg.Port,
			"dbname": cfg.DBName,
		}).Debug("connecting to postgres")
		dialector = postgres.Open(dsn)
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite database requires DATABASE.PATH")
		}
		logrus.WithField("path", cfg.Path).Debug("opening sqlite database")
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logging.GormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Type == "sqlite" {
		// 单连接，避免 sqlite 写锁竞争
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	return db, nil
}

// PostgresDSN builds a key=value DSN. The password is omitted when empty.
func PostgresDSN(cfg config.DatabaseConfig) string {
	var dsnParts []string
	dsnParts = append(dsnParts, fmt.Sprintf("host=%s", cfg.Host))
	dsnParts = append(dsnParts, fmt.Sprintf("port=%d", cfg.Port))
	dsnParts = append(dsnParts, fmt.Sprintf("user=%s", cfg.User))
	dsnParts = append(dsnParts, fmt.Sprintf("dbname=%s", cfg.DBName))
	if cfg.Password != "" {
		dsnParts = append(dsnParts, fmt.Sprintf("password=%s", cfg.Password))
	}
	dsnParts = append(dsnParts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))
	return strings.Join(dsnParts, " ")
}

// AutoMigrateTables runs GORM's auto-migration feature for all defined models.
func AutoMigrateTables(db *gorm.DB) error {
	logrus.Info("开始数据库表结构迁移...")
	err := db.AutoMigrate(
		&models.User{},
		&models.FriendRequest{},
		&models.Friendship{},
		&models.Block{},
	)
	if err != nil {
		logrus.WithError(err).Error("数据库迁移失败")
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	logrus.Info("数据库迁移完成。")
	return nil
}
