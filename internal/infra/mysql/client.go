// Package mysql stores the ledger in MySQL through GORM.
package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// Config defines the connection and pool settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// GORM log level: silent, error, warn, info
	LogLevel string

	ConnectRetries int
	RetryInterval  time.Duration
}

// DSN builds the driver connection string. Times are read and written
// in UTC.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnectRetries == 0 {
		c.ConnectRetries = 10
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 2 * time.Second
	}
	return c
}

// Client wraps a GORM DB instance
type Client struct {
	db *gorm.DB
}

// NewClient connects, retrying while the server comes up.
func NewClient(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	log = log.WithField("component", "mysql")

	gormConfig := &gorm.Config{
		// writes that need atomicity open their own transaction
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 newGormLogger(cfg.LogLevel),
	}

	var db *gorm.DB
	var err error

	for i := 0; i < cfg.ConnectRetries; i++ {
		db, err = gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
		if err == nil {
			if err = (&Client{db: db}).Health(ctx); err == nil {
				break
			}
		}

		if i < cfg.ConnectRetries-1 {
			log.Warn("failed to connect to mysql, retrying",
				"attempt", i+1,
				"max_attempts", cfg.ConnectRetries,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", cfg.ConnectRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Client{db: db}, nil
}

// DB returns the underlying *gorm.DB
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newGormLogger(level string) gormlogger.Interface {
	var logLevel gormlogger.LogLevel
	switch level {
	case "info":
		logLevel = gormlogger.Info
	case "warn":
		logLevel = gormlogger.Warn
	case "error":
		logLevel = gormlogger.Error
	default:
		logLevel = gormlogger.Silent
	}

	return gormlogger.Default.LogMode(logLevel)
}
