package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all configuration for the RallySight server.
type Config struct {
	Server ServerConfig
	Media  MediaConfig
	Redis  RedisConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type MediaConfig struct {
	// DataRoot is the directory holding originals, derived assets,
	// calibrations, annotation logs, and the ingest state snapshot.
	DataRoot    string
	FFmpegPath  string
	FFprobePath string
	// UseGPU switches the transcode commands to hardware decode and the
	// NVENC encoder.
	UseGPU bool
}

type RedisConfig struct {
	// URL is optional; without it upload rate limiting is disabled.
	URL              string
	UploadsPerMinute int
}

// Load reads configuration from environment variables and returns a
// validated Config. Returns an error with a descriptive message if any
// required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("RALLYSIGHT_PORT", 8080),
			Env:  envString("RALLYSIGHT_ENV", "development"),
		},
		Media: MediaConfig{
			DataRoot:    envString("DATA_ROOT", "/data"),
			FFmpegPath:  envString("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: envString("FFPROBE_PATH", "ffprobe"),
			UseGPU:      envBool("RALLYSIGHT_USE_GPU", false),
		},
		Redis: RedisConfig{
			URL:              os.Getenv("REDIS_URL"),
			UploadsPerMinute: envInt("UPLOAD_RATE_PER_MIN", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("RALLYSIGHT_PORT must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Media.DataRoot == "" {
		return fmt.Errorf("DATA_ROOT is required")
	}
	if !filepath.IsAbs(c.Media.DataRoot) {
		return fmt.Errorf("DATA_ROOT must be an absolute path, got %q", c.Media.DataRoot)
	}
	if c.Media.FFmpegPath == "" {
		return fmt.Errorf("FFMPEG_PATH must not be empty")
	}
	if c.Media.FFprobePath == "" {
		return fmt.Errorf("FFPROBE_PATH must not be empty")
	}
	if c.Redis.UploadsPerMinute <= 0 {
		return fmt.Errorf("UPLOAD_RATE_PER_MIN must be positive, got %d", c.Redis.UploadsPerMinute)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	switch v {
	case "1", "true", "yes", "on", "TRUE", "True", "YES", "ON":
		return true
	case "0", "false", "no", "off", "FALSE", "False", "NO", "OFF":
		return false
	default:
		return defaultVal
	}
}
