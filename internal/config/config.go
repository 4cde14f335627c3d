package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

// EnvPath names the environment variable holding the default config path.
const EnvPath = "RASH_CONFIG"

type Configuration struct {
	Prompt      string `json:"prompt" validate:"required"`
	Color       bool   `json:"color"`
	HistoryFile string `json:"history_file"`
	Notify      bool   `json:"notify"`

	Log Log `json:"log"`
}

type Log struct {
	Level string `json:"level" validate:"oneof=debug info warn error"`
	File  string `json:"file"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// SlogLevel maps Log.Level onto a slog level.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// OpenLog opens the log file for appending. It returns nil when logging is
// disabled.
func (c *Configuration) OpenLog(fsys afero.Fs) (afero.File, error) {
	if c.Log.File == "" {
		return nil, nil
	}
	return fsys.OpenFile(expandHome(c.Log.File), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// HistoryPath is the history file with a leading ~ expanded.
func (c *Configuration) HistoryPath() string {
	return expandHome(c.HistoryFile)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Default returns the built-in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Load reads the file at path over the defaults and validates the result.
// An empty path yields the defaults.
func Load(fsys afero.Fs, path string) (*Configuration, error) {
	out := Default()
	if path == "" {
		return out, nil
	}

	contents, err := afero.ReadFile(fsys, expandHome(path))
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(contents, out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
