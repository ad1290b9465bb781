package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host string `validate:"omitempty,ip|hostname"`
	Port string `validate:"required,numeric"`

	ModelDir               string `validate:"required"`
	ModelFile              string `validate:"required"`
	ModelConfigFile        string `validate:"required"`
	PreprocessorConfigFile string `validate:"required"`
	InputName              string `validate:"required"`
	OutputName             string `validate:"required"`

	// Empty means the onnxruntime default search path.
	ORTLibPath string

	MaxUploadBytes int64  `validate:"gt=0"`
	Env            string `validate:"oneof=development production"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	cfg := &Config{
		Host:                   getEnv("HOST", "0.0.0.0"),
		Port:                   getEnv("PORT", "5001"),
		ModelDir:               getEnv("MODEL_DIR", "models"),
		ModelFile:              getEnv("MODEL_FILE", "model.onnx"),
		ModelConfigFile:        getEnv("MODEL_CONFIG_FILE", "config.json"),
		PreprocessorConfigFile: getEnv("PREPROCESSOR_CONFIG_FILE", "preprocessor_config.json"),
		InputName:              getEnv("MODEL_INPUT_NAME", "pixel_values"),
		OutputName:             getEnv("MODEL_OUTPUT_NAME", "logits"),
		ORTLibPath:             os.Getenv("ONNXRUNTIME_LIB"),
		MaxUploadBytes:         maxUpload,
		Env:                    getEnv("APP_ENV", "production"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	port, _ := strconv.Atoi(c.Port)
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid config: port %d out of range", port)
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) ModelPath() string {
	return filepath.Join(c.ModelDir, c.ModelFile)
}

func (c *Config) ModelConfigPath() string {
	return filepath.Join(c.ModelDir, c.ModelConfigFile)
}

func (c *Config) PreprocessorConfigPath() string {
	return filepath.Join(c.ModelDir, c.PreprocessorConfigFile)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
