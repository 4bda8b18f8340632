package database

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cuidarte/crm/app/models"
	"github.com/cuidarte/crm/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// DSN builds the postgres connection string from DB_* variables.
func DSN() string {
	if url := env.GetEnv("DATABASE_URL", ""); url != "" {
		return url
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC application_name=crm",
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_USER", "postgres"),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_NAME", "postgres"),
		env.GetEnv("DB_PORT", "5432"),
		env.GetEnv("DB_SSLMODE", "require"),
	)
}

// MigrateURL builds the postgres:// URL used by golang-migrate.
func MigrateURL() string {
	if raw := env.GetEnv("DATABASE_URL", ""); raw != "" {
		return raw
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(env.GetEnv("DB_USER", "postgres"), env.GetEnv("DB_PASSWORD", "")),
		Host:   net.JoinHostPort(env.GetEnv("DB_HOST", "127.0.0.1"), env.GetEnv("DB_PORT", "5432")),
		Path:   "/" + env.GetEnv("DB_NAME", "postgres"),
	}
	q := u.Query()
	q.Set("sslmode", env.GetEnv("DB_SSLMODE", "require"))
	q.Set("x-migrations-table", "crm_schema_migrations")
	u.RawQuery = q.Encode()
	return u.String()
}

func SetupDatabase() {
	var err error
	cfg := &gorm.Config{
		// Unique violations surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	if env.IsDev() {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(postgres.New(postgres.Config{
			DSN: DSN(),
			// Supabase pools through PgBouncer in transaction mode.
			PreferSimpleProtocol: true,
		}), cfg)
		if err == nil {
			tunePool()
			if env.GetEnv("DB_AUTO_MIGRATE", "false") == "true" {
				autoMigrate()
			}
			log.Info("[Database] connected")
			return
		}

		log.Errorf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// GetDB returns the shared connection, connecting on first use.
func GetDB() *gorm.DB {
	if DB == nil {
		SetupDatabase()
	}
	return DB
}

func tunePool() {
	sqlDB, err := DB.DB()
	if err != nil {
		log.Warnf("[Database] pool tune: %v", err)
		return
	}
	sqlDB.SetMaxOpenConns(env.GetInt("DB_MAX_OPEN_CONNS", 20))
	sqlDB.SetMaxIdleConns(env.GetInt("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

// autoMigrate is for local databases only; shared environments use cmd/migrate.
func autoMigrate() {
	if err := DB.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.PaymentMethod{},
		&models.PaymentLink{},
		&models.StaffInvoice{},
		&models.Sale{},
		&models.StaffPayment{},
	); err != nil {
		log.Errorf("[Database] auto migrate: %v", err)
	}
}
