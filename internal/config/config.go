// Package config loads the bot configuration. Values come from a key=value
// config file (the original deployment format), with environment variables
// taking precedence.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// File keys understood in the key=value config file.
const (
	fileKeyBotToken = "Telegram_Bot_Token"
	fileKeyDBPath   = "Database_Path"
	fileKeyAMQPURL  = "AMQP_URL"
)

type Config struct {
	// Telegram
	BotToken    string
	PollTimeout time.Duration

	// Database
	SQLiteDBPath string

	// Event publishing (optional; disabled when the URL is empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Load reads the config file at path and applies environment overrides.
// A missing file is fine as long as the environment supplies the token.
func Load(path string) (*Config, error) {
	fileValues, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BotToken:     getEnv("BOT_TOKEN", fileValues[fileKeyBotToken]),
		PollTimeout:  getEnvDuration("POLL_TIMEOUT", 30*time.Second),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", withDefault(fileValues[fileKeyDBPath], "SpendingCalcData.db")),
		AMQPURL:      getEnv("AMQP_URL", fileValues[fileKeyAMQPURL]),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spendingcalc"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "entry_events"),
	}

	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if c.BotToken == "" {
		errs = append(errs, "bot token is missing: set Telegram_Bot_Token in the config file or BOT_TOKEN in the environment")
	}
	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	}
	if c.PollTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid poll timeout %v: must be at least 1 second", c.PollTimeout))
	} else if c.PollTimeout > 5*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid poll timeout %v: must be at most 5 minutes", c.PollTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// parseFile reads key=value lines. Blank lines and lines starting with #
// are skipped. A missing file yields an empty map.
func parseFile(path string) (map[string]string, error) {
	values := make(map[string]string)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("config file %s line %d: expected key=value, got %q", path, lineNo, line)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return values, nil
}

func withDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
