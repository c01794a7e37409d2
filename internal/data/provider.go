package data

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/wire"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/system"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(SetupDB)

// SetupDB 打开片段历史库，默认使用本地 sqlite
func SetupDB(c *conf.Bootstrap) (*gorm.DB, error) {
	cfg := c.Data.Database
	dial, driver, err := dialector(cfg.Dsn)
	if err != nil {
		return nil, err
	}
	idle, open := int(cfg.MaxIdleConns), int(cfg.MaxOpenConns)
	if driver == "sqlite" {
		// sqlite 只使用单连接
		idle, open = 1, 1
	}
	db, err := orm.New(dial, orm.Config{
		MaxIdleConns:    idle,
		MaxOpenConns:    open,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Duration(),
		SlowThreshold:   cfg.SlowThreshold.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	slog.Info("database ready", "driver", driver)
	return db, nil
}

// dialector 按 dsn 前缀选择驱动，其余视为 sqlite 文件路径
func dialector(dsn string) (gorm.Dialector, string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres"):
		return postgres.New(postgres.Config{DriverName: "pgx", DSN: dsn}), "postgres", nil
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), "mysql", nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	if path == "" {
		path = "configs/data.db"
	}
	if path != ":memory:" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(system.Getwd(), path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, "", err
		}
	}
	return sqlite.Open(path), "sqlite", nil
}
