package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Upload backends
const (
	BackendS3     = "s3"
	BackendGDrive = "gdrive"
)

// Config represents the application configuration. Values come from the
// YAML file first; environment variables override them.
type Config struct {
	Server struct {
		Port int    `yaml:"port" env:"PORT"`
		Host string `yaml:"host" env:"HOST"`
		// AllowOrigins is the recorder app origin allowed by CORS
		AllowOrigins   string `yaml:"allow_origins" env:"ELECTRON_HOST"`
		ReadLimitBytes int64  `yaml:"read_limit_bytes" env:"WS_READ_LIMIT_BYTES"`
	} `yaml:"server"`

	Storage struct {
		TempDir  string `yaml:"temp_dir" env:"TEMP_DIR"`
		Database string `yaml:"database" env:"DATABASE_PATH"`
		Backend  string `yaml:"backend" env:"UPLOAD_BACKEND"`
	} `yaml:"storage"`

	S3 struct {
		Bucket    string `yaml:"bucket" env:"BUCKET_NAME"`
		Region    string `yaml:"region" env:"BUCKET_REGION"`
		AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
	} `yaml:"s3"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file" env:"GDRIVE_CREDENTIALS_FILE"`
		TokenFile       string `yaml:"token_file" env:"GDRIVE_TOKEN_FILE"`
		FolderName      string `yaml:"folder_name" env:"GDRIVE_FOLDER_NAME"`
	} `yaml:"google_drive"`

	OpenAI struct {
		APIKey             string `yaml:"api_key" env:"OPEN_AI_KEY"`
		BaseURL            string `yaml:"base_url" env:"OPENAI_BASE_URL"`
		TranscriptionModel string `yaml:"transcription_model" env:"WHISPER_MODEL"`
		ChatModel          string `yaml:"chat_model" env:"OPENAI_MODEL"`
	} `yaml:"openai"`

	LLM struct {
		Provider         string `yaml:"provider" env:"LLM_PROVIDER"`
		YandexOAuthToken string `yaml:"yandex_oauth_token" env:"YANDEX_OAUTH_TOKEN"`
		YandexFolderID   string `yaml:"yandex_folder_id" env:"YANDEX_FOLDER_ID"`
	} `yaml:"llm"`

	Notifier struct {
		// BaseURL is the system of record, e.g. https://app.example.com/api/
		BaseURL        string `yaml:"base_url" env:"NEXT_API_HOST"`
		TimeoutSeconds int    `yaml:"timeout_seconds" env:"NOTIFY_TIMEOUT_SECONDS"`
	} `yaml:"notifier"`

	Cleanup struct {
		Schedule    string `yaml:"schedule" env:"CLEANUP_SCHEDULE"`
		MaxAgeHours int    `yaml:"max_age_hours" env:"CLEANUP_MAX_AGE_HOURS"`
	} `yaml:"cleanup"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 5001
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.AllowOrigins = "*"
	cfg.Server.ReadLimitBytes = 32 << 20
	cfg.Storage.TempDir = "temp_upload"
	cfg.Storage.Database = "data/recordings.db"
	cfg.Storage.Backend = BackendS3
	cfg.GoogleDrive.FolderName = "Recordings"
	cfg.OpenAI.TranscriptionModel = "whisper-1"
	cfg.OpenAI.ChatModel = "gpt-3.5-turbo"
	cfg.LLM.Provider = "openai"
	cfg.Notifier.TimeoutSeconds = 30
	cfg.Cleanup.Schedule = "@every 30m"
	cfg.Cleanup.MaxAgeHours = 24
	return cfg
}

// Load reads the YAML file at path, if it exists, and applies environment
// overrides on top
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the selected backends need
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Storage.TempDir == "" {
		errs = append(errs, errors.New("storage.temp_dir is required"))
	}
	if c.Notifier.BaseURL == "" {
		errs = append(errs, errors.New("NEXT_API_HOST is required"))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPEN_AI_KEY is required"))
	}

	switch c.Storage.Backend {
	case BackendS3:
		if c.S3.Bucket == "" || c.S3.Region == "" {
			errs = append(errs, errors.New("BUCKET_NAME and BUCKET_REGION are required for the s3 backend"))
		}
	case BackendGDrive:
		if c.GoogleDrive.CredentialsFile == "" || c.GoogleDrive.TokenFile == "" {
			errs = append(errs, errors.New("google_drive.credentials_file and token_file are required for the gdrive backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload backend %q", c.Storage.Backend))
	}

	if c.LLM.Provider == "yandex" && (c.LLM.YandexOAuthToken == "" || c.LLM.YandexFolderID == "") {
		errs = append(errs, errors.New("YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID are required for the yandex provider"))
	}

	return errors.Join(errs...)
}

// NotifyTimeout is the per-call timeout for system of record requests
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifier.TimeoutSeconds) * time.Second
}

// CleanupMaxAge is the age after which abandoned scratch files are swept
func (c *Config) CleanupMaxAge() time.Duration {
	return time.Duration(c.Cleanup.MaxAgeHours) * time.Hour
}
