// Package config loads the service configuration from PRESENCA_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	// PRESENCA_TIMEZONE must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PRESENCA"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config captures environment driven configuration values for the attendance service.
type Config struct {
	HTTPPort        int
	Store           string
	SQLitePath      string
	TokenSecret     string
	TokenTTL        time.Duration
	AdminEmails     []string
	Timezone        string
	Location        *time.Location
	LogFormat       string
	LogLevel        string
	ConfirmRetries  int
	SecureCookie    bool
	ShutdownTimeout time.Duration
}

// Load reads the configuration from the environment. Each envFile that exists
// is loaded first; variables already set in the process win over the file.
// With no envFile, ".env" in the working directory is tried.
//
// Missing required variables and unparsable values are reported together,
// naming the full variable names.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault("http_port", 8080)
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("sqlite_path", "presenca.db")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("admin_emails", "")
	v.SetDefault("timezone", "America/Sao_Paulo")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_level", "info")
	v.SetDefault("confirm_retries", 5)
	v.SetDefault("secure_cookie", false)
	v.SetDefault("shutdown_timeout", "10s")

	var missing, invalid []string
	cfg := Config{
		Store:       strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		SQLitePath:  strings.TrimSpace(v.GetString("sqlite_path")),
		TokenSecret: strings.TrimSpace(v.GetString("token_secret")),
		Timezone:    strings.TrimSpace(v.GetString("timezone")),
		LogFormat:   strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		AdminEmails: splitList(v.GetString("admin_emails")),
	}

	if port, err := strconv.Atoi(strings.TrimSpace(v.GetString("http_port"))); err != nil || port <= 0 || port > 65535 {
		invalid = append(invalid, envName("http_port"))
	} else {
		cfg.HTTPPort = port
	}

	if cfg.Store != StoreSQLite && cfg.Store != StoreMemory {
		invalid = append(invalid, envName("store"))
	}
	if cfg.Store == StoreSQLite && cfg.SQLitePath == "" {
		invalid = append(invalid, envName("sqlite_path"))
	}

	if cfg.TokenSecret == "" {
		missing = append(missing, envName("token_secret"))
	} else if len(cfg.TokenSecret) < 16 {
		invalid = append(invalid, envName("token_secret"))
	}

	if ttl, err := time.ParseDuration(strings.TrimSpace(v.GetString("token_ttl"))); err != nil || ttl <= 0 {
		invalid = append(invalid, envName("token_ttl"))
	} else {
		cfg.TokenTTL = ttl
	}

	if loc, err := time.LoadLocation(cfg.Timezone); err != nil {
		invalid = append(invalid, envName("timezone"))
	} else {
		cfg.Location = loc
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		invalid = append(invalid, envName("log_format"))
	}
	if !validLevel(cfg.LogLevel) {
		invalid = append(invalid, envName("log_level"))
	}

	if retries, err := strconv.Atoi(strings.TrimSpace(v.GetString("confirm_retries"))); err != nil || retries < 0 {
		invalid = append(invalid, envName("confirm_retries"))
	} else {
		cfg.ConfirmRetries = retries
	}

	if secure, err := strconv.ParseBool(strings.TrimSpace(v.GetString("secure_cookie"))); err != nil {
		invalid = append(invalid, envName("secure_cookie"))
	} else {
		cfg.SecureCookie = secure
	}

	if timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString("shutdown_timeout"))); err != nil || timeout <= 0 {
		invalid = append(invalid, envName("shutdown_timeout"))
	} else {
		cfg.ShutdownTimeout = timeout
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("variáveis de ambiente obrigatórias não definidas: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("valores inválidos nas variáveis de ambiente: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(key)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
