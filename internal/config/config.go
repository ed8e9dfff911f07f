// Package config loads coordinator and worker settings from environment
// variables (prefixed FLOCKD_) and a .flockd.yaml file, layered through
// spf13/viper; command-line flags are not bound here, the commands apply
// their own flags over the loaded values - generalized from
// the teacher's bare os.Getenv/JSON-file Load/Save, and grounded on the
// original's os.environ reads in distributed_server.py (HOST, PORT, TIMEOUT,
// NO_OF_CLIENTS, class_register, face_models_folder).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds the coordinator's settings for one batch run.
type Config struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Timeout       time.Duration `mapstructure:"timeout"`
	NumWorkers    int           `mapstructure:"num_workers"`
	ClassRegister string        `mapstructure:"class_register"`
	ModelsDir     string        `mapstructure:"models_dir"`
	BatchFile     string        `mapstructure:"batch_file"`
	ResultLogPath string        `mapstructure:"result_log_path"`
	Transport     string        `mapstructure:"transport"` // "tcp" or "quic"
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	Headless      bool          `mapstructure:"headless"`
}

// WorkerConfig holds a worker's settings for connecting to a coordinator.
type WorkerConfig struct {
	CoordinatorAddr string `mapstructure:"coordinator_addr"`
	Name            string `mapstructure:"name"`
	Discover        bool   `mapstructure:"discover"`
	Code            string `mapstructure:"code"`
	Transport       string `mapstructure:"transport"`
	ModelsDir       string `mapstructure:"models_dir"`
	ImagesDir       string `mapstructure:"images_dir"`
	JSONsDir        string `mapstructure:"jsons_dir"`
}

// dirPath returns ~/.flockd, creating it if necessary.
func dirPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".flockd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("config: create config dir: %w", err)
	}
	return dir, nil
}

// HistoryPath returns the path to the run-history JSONL log.
func HistoryPath() (string, error) {
	dir, err := dirPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.jsonl"), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FLOCKD")
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 12345)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("num_workers", 1)
	v.SetDefault("transport", "tcp")
	v.SetDefault("result_log_path", "results.json")
	v.SetDefault("coordinator_addr", "localhost:12345")
	v.SetDefault("models_dir", "Models")
	v.SetDefault("images_dir", "Images")
	v.SetDefault("jsons_dir", "Jsons")

	return v
}

// Load reads coordinator config layered env > .flockd.yaml (searched in the
// current directory and ~/.flockd) > defaults above.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName(".flockd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := dirPath(); err == nil {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// LoadWorker reads worker config the same way Load does for the coordinator.
func LoadWorker() (*WorkerConfig, error) {
	v := newViper()
	v.SetConfigName(".flockd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := dirPath(); err == nil {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
