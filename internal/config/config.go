package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "mmsdl"

// Config holds the configuration options for the application.
type Config struct {
	MaxConcurrentDownloads int        `yaml:"maxConcurrentDownloads,omitempty"`
	StateDir               string     `yaml:"stateDir,omitempty"`
	MMS                    *MMSConfig `yaml:"mms,omitempty"`
}

// MMSConfig holds configuration options for MMS sessions.
type MMSConfig struct {
	DownloadDir  string        `yaml:"dir,omitempty"`
	Port         int           `yaml:"port,omitempty"`
	HTTPPort     int           `yaml:"httpPort,omitempty"`
	UserAgent    string        `yaml:"userAgent,omitempty"`
	DialTimeout  time.Duration `yaml:"dialTimeout,omitempty"`
	SaveInterval time.Duration `yaml:"saveInterval,omitempty"`
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	configFilePath := filepath.Join(xdg.ConfigHome, configFileName)
	defaults := DefaultConfig()

	b, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	mmsCfg := zeroOr(cfg.MMS, defaults.MMS)

	return &Config{
		MaxConcurrentDownloads: zeroOr(cfg.MaxConcurrentDownloads, defaults.MaxConcurrentDownloads),
		StateDir:               zeroOr(cfg.StateDir, defaults.StateDir),
		MMS: &MMSConfig{
			DownloadDir:  zeroOr(mmsCfg.DownloadDir, defaults.MMS.DownloadDir),
			Port:         zeroOr(mmsCfg.Port, defaults.MMS.Port),
			HTTPPort:     zeroOr(mmsCfg.HTTPPort, defaults.MMS.HTTPPort),
			UserAgent:    zeroOr(mmsCfg.UserAgent, defaults.MMS.UserAgent),
			DialTimeout:  zeroOr(mmsCfg.DialTimeout, defaults.MMS.DialTimeout),
			SaveInterval: zeroOr(mmsCfg.SaveInterval, defaults.MMS.SaveInterval),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentDownloads: maxConcurrentDownloads,
		StateDir:               stateDir,
		MMS: &MMSConfig{
			DownloadDir:  downloadDir,
			Port:         mmsPort,
			HTTPPort:     mmsHTTPPort,
			UserAgent:    userAgent,
			DialTimeout:  dialTimeout,
			SaveInterval: saveInterval,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
