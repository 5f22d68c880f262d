// Package config loads reqboard settings from the environment, a .env file and an
// optional reqboard.yaml.
//
// Precedence, highest first: process environment, .env, config file, defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/reqboard/reqboard/internal/request"
)

// keys maps config keys to their environment variables.
var keys = map[string]string{
	"discord_token":   "DISCORD_TOKEN",
	"channel_id":      "CHANNEL_ID",
	"port":            "PORT",
	"message_count":   "MESSAGE_COUNT",
	"done_emoji":      "DONE_EMOJI",
	"static_dir":      "STATIC_DIR",
	"log.file":        "LOG_FILE",
	"log.max_size":    "LOG_MAX_SIZE",
	"log.max_backups": "LOG_MAX_BACKUPS",
	"log.max_age":     "LOG_MAX_AGE",
	"journal_path":    "JOURNAL_PATH",
	"redis_url":       "REDIS_URL",
	"redis_channel":   "REDIS_CHANNEL",
}

// Config holds every setting the CLI needs.
type Config struct {
	DiscordToken string
	ChannelID    string
	Port         int
	MessageCount int
	DoneEmoji    string
	StaticDir    string

	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// JournalPath enables the SQLite event journal when set
	JournalPath string

	// RedisURL enables the Redis relay when set
	RedisURL     string
	RedisChannel string

	v *viper.Viper

	logOnce   sync.Once
	logWriter io.Writer
	logFile   *lumberjack.Logger
}

// LoadDotEnv loads variables from path without overriding the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration. An explicit path must exist; with an empty path
// reqboard.yaml is picked up from the working directory when present.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 3111)
	v.SetDefault("message_count", 50)
	v.SetDefault("done_emoji", request.DoneReaction)
	v.SetDefault("static_dir", "public")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("redis_channel", "reqboard:events")

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("reqboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return &Config{
		DiscordToken:  v.GetString("discord_token"),
		ChannelID:     v.GetString("channel_id"),
		Port:          v.GetInt("port"),
		MessageCount:  v.GetInt("message_count"),
		DoneEmoji:     v.GetString("done_emoji"),
		StaticDir:     v.GetString("static_dir"),
		LogFile:       v.GetString("log.file"),
		LogMaxSizeMB:  v.GetInt("log.max_size"),
		LogMaxBackups: v.GetInt("log.max_backups"),
		LogMaxAgeDays: v.GetInt("log.max_age"),
		JournalPath:   v.GetString("journal_path"),
		RedisURL:      v.GetString("redis_url"),
		RedisChannel:  v.GetString("redis_channel"),
		v:             v,
	}, nil
}

// Validate checks the settings `serve` cannot run without.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing DISCORD_TOKEN, please provide it in the environment or .env file")
	}
	if c.ChannelID == "" {
		return fmt.Errorf("missing CHANNEL_ID, please provide it in the environment or .env file")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MessageCount <= 0 {
		return fmt.Errorf("invalid MESSAGE_COUNT %d", c.MessageCount)
	}
	return nil
}

// File returns the config file in use, or "".
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch reports edits to the config file. Settings are not reloaded; a restart is needed.
// Returns false when no config file is in use.
func (c *Config) Watch(logger *log.Logger, onChange func(fsnotify.Event)) bool {
	if c.File() == "" {
		return false
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if logger != nil {
			logger.Printf("Config file changed (%s %s), restart to apply", e.Op, e.Name)
		}
		if onChange != nil {
			onChange(e)
		}
	})
	c.v.WatchConfig()
	return true
}

// LogWriter returns stderr, teed into a rotating file when LogFile is set.
// Every call returns the same writer.
func (c *Config) LogWriter() io.Writer {
	c.logOnce.Do(func() {
		if c.LogFile == "" {
			c.logWriter = os.Stderr
			return
		}
		c.logFile = &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSizeMB,
			MaxBackups: c.LogMaxBackups,
			MaxAge:     c.LogMaxAgeDays,
			Compress:   true,
		}
		c.logWriter = io.MultiWriter(os.Stderr, c.logFile)
	})
	return c.logWriter
}

// Close releases the log file, if any.
func (c *Config) Close() error {
	if c.logFile == nil {
		return nil
	}
	return c.logFile.Close()
}

// Logger returns a logger with the bracketed component prefix used across reqboard.
func (c *Config) Logger(component string) *log.Logger {
	return log.New(c.LogWriter(), "["+component+"] ", log.LstdFlags)
}
