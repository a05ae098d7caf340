// Package config handles configuration loading and validation for railscope.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/railscope/internal/classify"
)

const (
	// DefaultConfigFile is the default configuration file name (without extension).
	DefaultConfigFile = ".railscope"
	// DefaultConfigType is the default configuration file type.
	DefaultConfigType = "yaml"
	// EnvPrefix prefixes environment overrides, e.g. RAILSCOPE_WORKERS.
	EnvPrefix = "RAILSCOPE"
)

// Formats lists the supported output formats.
var Formats = []string{"text", "toon", "json", "yaml"}

// Config holds all configuration for railscope.
type Config struct {
	// Sources says where the application code lives.
	Sources SourcesConfig `mapstructure:"sources" yaml:"sources" toml:"sources"`
	// Analysis tunes which Rails idioms are recognised.
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis" toml:"analysis"`
	// Output controls the report.
	Output OutputConfig `mapstructure:"output" yaml:"output" toml:"output"`
	// Workers bounds parallel parsing; 0 means one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers" toml:"workers" validate:"gte=0"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level" toml:"log_level" validate:"oneof=debug info warn error"`
}

// SourcesConfig locates controllers, helpers, views and the route table.
type SourcesConfig struct {
	// Dirs are scanned for controllers, concerns and helpers, in order.
	Dirs []string `mapstructure:"dirs" yaml:"dirs" toml:"dirs" validate:"min=1,dive,required"`
	// Views is the directory holding jbuilder templates.
	Views string `mapstructure:"views" yaml:"views" toml:"views"`
	// Routes is the saved output of `rails routes`.
	Routes string `mapstructure:"routes" yaml:"routes" toml:"routes"`
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int `mapstructure:"max_file_size" yaml:"max_file_size" toml:"max_file_size" validate:"gte=0"`
}

// AnalysisConfig mirrors classify.Options.
type AnalysisConfig struct {
	ParamSources    []string `mapstructure:"param_sources" yaml:"param_sources" toml:"param_sources" validate:"min=1,dive,required"`
	HeaderSources   []string `mapstructure:"header_sources" yaml:"header_sources" toml:"header_sources" validate:"min=1,dive,required"`
	ExceptionBases  []string `mapstructure:"exception_bases" yaml:"exception_bases" toml:"exception_bases"`
	ConcernMarker   string   `mapstructure:"concern_marker" yaml:"concern_marker" toml:"concern_marker" validate:"required"`
	Hooks           []string `mapstructure:"hooks" yaml:"hooks" toml:"hooks"`
	CustomHooks     []string `mapstructure:"custom_hooks" yaml:"custom_hooks" toml:"custom_hooks"`
	IgnoredMacros   []string `mapstructure:"ignored_macros" yaml:"ignored_macros" toml:"ignored_macros"`
	IgnoredIncludes []string `mapstructure:"ignored_includes" yaml:"ignored_includes" toml:"ignored_includes"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	// Format is one of Formats.
	Format string `mapstructure:"format" yaml:"format" toml:"format" validate:"oneof=text toon json yaml"`
	// Top limits the declaration ranking; 0 means all.
	Top int `mapstructure:"top" yaml:"top" toml:"top" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := classify.DefaultOptions()
	return &Config{
		Sources: SourcesConfig{
			Dirs:        []string{"app/controllers", "app/helpers"},
			Views:       "app/views",
			Routes:      "routes.txt",
			MaxFileSize: 1_000_000,
		},
		Analysis: AnalysisConfig{
			ParamSources:    opts.ParamSources,
			HeaderSources:   opts.HeaderSources,
			ExceptionBases:  opts.ExceptionBases,
			ConcernMarker:   opts.ConcernMarker,
			Hooks:           opts.Hooks,
			CustomHooks:     opts.CustomHooks,
			IgnoredMacros:   opts.IgnoredMacros,
			IgnoredIncludes: opts.IgnoredIncludes,
		},
		Output:   OutputConfig{Format: "text"},
		LogLevel: "warn",
	}
}

// Load reads configuration for the application at root. If file is empty,
// root/.railscope.yaml is used when present. Environment variables with
// the RAILSCOPE_ prefix override file values.
func Load(root, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultConfigFile)
		v.SetConfigType(DefaultConfigType)
		v.AddConfigPath(root)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so that environment overrides apply
// even when no config file exists.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("sources.dirs", d.Sources.Dirs)
	v.SetDefault("sources.views", d.Sources.Views)
	v.SetDefault("sources.routes", d.Sources.Routes)
	v.SetDefault("sources.max_file_size", d.Sources.MaxFileSize)

	v.SetDefault("analysis.param_sources", d.Analysis.ParamSources)
	v.SetDefault("analysis.header_sources", d.Analysis.HeaderSources)
	v.SetDefault("analysis.exception_bases", d.Analysis.ExceptionBases)
	v.SetDefault("analysis.concern_marker", d.Analysis.ConcernMarker)
	v.SetDefault("analysis.hooks", d.Analysis.Hooks)
	v.SetDefault("analysis.custom_hooks", d.Analysis.CustomHooks)
	v.SetDefault("analysis.ignored_macros", d.Analysis.IgnoredMacros)
	v.SetDefault("analysis.ignored_includes", d.Analysis.IgnoredIncludes)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.top", d.Output.Top)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("log_level", d.LogLevel)
}

var validate = newValidator()

// newValidator reports fields by their config key rather than the Go name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fieldError(verrs[0])
		}
		return err
	}
	for i, dir := range c.Sources.Dirs {
		if filepath.IsAbs(dir) {
			return fmt.Errorf("sources.dirs[%d]: must be a relative path, got %q", i, dir)
		}
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	// Namespace is "Config.sources.dirs[0]"; drop the root type.
	_, key, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", key)
	case "min":
		return fmt.Errorf("%s must list at least %s entry", key, fe.Param())
	case "gte":
		return fmt.Errorf("%s must not be negative", key)
	case "oneof":
		return fmt.Errorf("%s must be one of %s, got %q", key, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	}
	return fmt.Errorf("%s: failed %s check", key, fe.Tag())
}

// ClassifyOptions converts the analysis section for the classifier.
func (c *Config) ClassifyOptions() classify.Options {
	a := c.Analysis
	return classify.Options{
		ParamSources:    a.ParamSources,
		HeaderSources:   a.HeaderSources,
		ExceptionBases:  a.ExceptionBases,
		ConcernMarker:   a.ConcernMarker,
		Hooks:           a.Hooks,
		CustomHooks:     a.CustomHooks,
		IgnoredMacros:   a.IgnoredMacros,
		IgnoredIncludes: a.IgnoredIncludes,
	}
}

// Marshal renders cfg as a commented YAML document, or as TOML when
// format is "toml".
func Marshal(cfg *Config, format string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case "", "yaml", "yml":
		data, err = yaml.Marshal(cfg)
	case "toml":
		data, err = toml.Marshal(cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return append([]byte("# railscope configuration\n"), data...), nil
}

// FormatFor returns the config format implied by path's extension.
func FormatFor(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// Write serializes cfg to path in the format its extension names.
func Write(cfg *Config, path string) error {
	data, err := Marshal(cfg, FormatFor(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
