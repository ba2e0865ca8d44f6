package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	appNameVar    = "APP_NAME"
	envVar        = "ENV"
	logLevelVar   = "LOG_LEVEL"
	configFileVar = "TOKEN_MANAGER_CONFIG"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// LoadDotEnv loads a .env file into the process environment if one exists. Variables already
// set are not overridden.
func LoadDotEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Token Manager")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetConfigFile is the path of the YAML file holding the client table and OIDC schemes.
func (EnvVars) GetConfigFile() string {
	return GetEnv(configFileVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getFloat(envVar string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(GetEnv(envVar, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getBool(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getSeconds reads a whole number of seconds, or a Go duration string such as "90s".
func getSeconds(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	log.Warn().Str("var", envVar).Str("value", raw).Msg("invalid duration, using default")
	return defaultValue
}
