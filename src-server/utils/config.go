package utils

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	port string

	jwtSecret string
	jwtExpire time.Duration

	databasePath  string
	attachmentDir string

	location *time.Location

	metricCollectionInterval time.Duration
	reminderCronSpec         string
}

func NewConfig() *Config {
	return &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),

		jwtSecret: func() string {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				slog.Warn("JWT_SECRET is not set")
				secret = "secret"
			}
			return secret
		}(),
		jwtExpire: func() time.Duration {
			jwtExpire := os.Getenv("JWT_EXPIRE")
			if jwtExpire == "" {
				jwtExpire = "168h" // 1 week
			}
			duration, err := time.ParseDuration(jwtExpire)
			if err != nil {
				slog.Error("invalid JWT_EXPIRE", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "JWT_EXPIRE", jwtExpire, "duration", duration)
			return duration
		}(),

		databasePath: func() string {
			databasePath := os.Getenv("DATABASE_PATH")
			if databasePath == "" {
				databasePath = "./sqlite.db"
			}
			slog.Debug("env", "DATABASE_PATH", databasePath)
			return databasePath
		}(),
		attachmentDir: func() string {
			attachmentDir := os.Getenv("ATTACHMENT_DIR")
			if attachmentDir == "" {
				attachmentDir = "./attachments"
			}
			if err := os.MkdirAll(attachmentDir, 0o755); err != nil {
				slog.Error("can't create ATTACHMENT_DIR", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "ATTACHMENT_DIR", attachmentDir)
			return filepath.Clean(attachmentDir)
		}(),

		location: func() *time.Location {
			timezoneStr := os.Getenv("TIMEZONE")
			var loc *time.Location
			var err error
			switch timezoneStr {
			case "":
				slog.Warn("TIMEZONE is not set, using local timezone", "timezone", time.Local)
				loc = time.Local
			case "UTC":
				loc = time.UTC
			default:
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					slog.Error("invalid timezone", "timezone", timezoneStr, "error", err)
					os.Exit(1)
				}
			}
			slog.Debug("env", "TIMEZONE", timezoneStr)
			return loc
		}(),

		metricCollectionInterval: func() time.Duration {
			intervalStr := os.Getenv("METRIC_COLLECTION_INTERVAL")
			if intervalStr == "" {
				intervalStr = "1m"
			}
			interval, err := time.ParseDuration(intervalStr)
			if err != nil {
				slog.Error("invalid METRIC_COLLECTION_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "METRIC_COLLECTION_INTERVAL", interval)
			return interval
		}(),
		reminderCronSpec: func() string {
			spec := os.Getenv("REMINDER_CRON")
			if spec == "" {
				spec = "*/5 * * * *"
			}
			slog.Debug("env", "REMINDER_CRON", spec)
			return spec
		}(),
	}
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string {
	return c.port
}

// Get JWT_SECRET env
func (c *Config) GetJWTSecret() string {
	return c.jwtSecret
}

// Get JWT_EXPIRE env
func (c *Config) GetJWTExpire() time.Duration {
	return c.jwtExpire
}

// Get DATABASE_PATH env
func (c *Config) GetDatabasePath() string {
	return c.databasePath
}

// Get ATTACHMENT_DIR env
func (c *Config) GetAttachmentDir() string {
	return c.attachmentDir
}

// Get TIMEZONE env
func (c *Config) GetLocation() *time.Location {
	return c.location
}

// Get METRIC_COLLECTION_INTERVAL env
func (c *Config) GetMetricCollectionInterval() time.Duration {
	return c.metricCollectionInterval
}

// Get REMINDER_CRON env
func (c *Config) GetReminderCronSpec() string {
	return c.reminderCronSpec
}
