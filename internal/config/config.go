// Package config provides configuration management for the map pipelines.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"njvaxbot/internal/binner"
	"njvaxbot/internal/normalizer"
	"njvaxbot/internal/table"
)

// Environment overrides.
const (
	EnvConfigPath = "NJVAXBOT_CONFIG"
	EnvLogLevel   = "NJVAXBOT_LOG_LEVEL"
)

// Configuration validation errors.
var (
	ErrInvalidRetryBudget  = errors.New("retry.budget must be non-negative")
	ErrInvalidBackoff      = errors.New("retry.backoff_ms must be non-negative")
	ErrInvalidTimeout      = errors.New("http.timeout_sec must be at least 1")
	ErrInvalidRate         = errors.New("http.requests_per_second must be positive")
	ErrInvalidLogLevel     = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat    = errors.New("logging.format must be one of: text, json, console")
	ErrMissingOutputDir    = errors.New("run.data_dir, run.image_dir and run.export_dir are required")
	ErrUnknownPalette      = errors.New("unknown palette")
	ErrSourceMissingURL    = errors.New("either url or file is required")
	ErrSourceMissingRows   = errors.New("row_selector is required")
	ErrSourceMissingFields = errors.New("fields are required unless derive_schema is set")
	ErrSourceMissingColumn = errors.New("key_column and snapshot_column are required")
	ErrInvalidLayer        = errors.New("invalid layer")
	ErrDuplicateSource     = errors.New("source names must be unique")
	ErrMissingCaption      = errors.New("chicago.caption needs template, count_field and population_field")
)

// Config represents the complete pipeline configuration.
type Config struct {
	Palettes map[string][]string `yaml:"palettes"`
	Tracing  TracingConfig       `yaml:"tracing"`
	Run      RunConfig           `yaml:"run"`
	Logging  LoggingConfig       `yaml:"logging"`
	Metrics  MetricsConfig       `yaml:"metrics"`
	HTTP     HTTPConfig          `yaml:"http"`
	Chicago  ChicagoConfig       `yaml:"chicago"`
	NJ       NJConfig            `yaml:"nj"`
	Retry    RetryPolicy         `yaml:"retry"`
}

// RunConfig defines the run clock and output locations.
type RunConfig struct {
	Timezone  string `yaml:"timezone"`
	DataDir   string `yaml:"data_dir"`
	ImageDir  string `yaml:"image_dir"`
	ExportDir string `yaml:"export_dir"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryPolicy defines the fetch retry budget. A budget of N allows 1 + N calls
// with a constant pause between them.
type RetryPolicy struct {
	Budget    int `yaml:"budget"`
	BackoffMs int `yaml:"backoff_ms"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	UserAgent         string  `yaml:"user_agent"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BufferSizeKb      int     `yaml:"buffer_size_kb"`
}

// FieldConfig declares one schema field.
type FieldConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// DashboardConfig describes a rendered dashboard page.
type DashboardConfig struct {
	Name          string        `yaml:"name"`
	URL           string        `yaml:"url"`
	File          string        `yaml:"file"`
	RowSelector   string        `yaml:"row_selector"`
	LabelSelector string        `yaml:"label_selector"`
	CellSelector  string        `yaml:"cell_selector"`
	Fields        []FieldConfig `yaml:"fields"`
	SplitLines    bool          `yaml:"split_lines"`
	DeriveSchema  bool          `yaml:"derive_schema"`
}

// SocrataField maps a view column to a schema field.
type SocrataField struct {
	Column string `yaml:"column"`
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
}

// SocrataConfig describes a Socrata rows.json view.
type SocrataConfig struct {
	Name           string         `yaml:"name"`
	URL            string         `yaml:"url"`
	File           string         `yaml:"file"`
	KeyColumn      string         `yaml:"key_column"`
	SnapshotColumn string         `yaml:"snapshot_column"`
	SnapshotLayout string         `yaml:"snapshot_layout"`
	Fields         []SocrataField `yaml:"fields"`
}

// LayerConfig selects one field of one table to render as a map.
type LayerConfig struct {
	Name     string `yaml:"name"`
	Table    string `yaml:"table"`
	Field    string `yaml:"field"`
	Palette  string `yaml:"palette"`
	Mode     string `yaml:"mode"`
	Template string `yaml:"template"`
}

// NJConfig configures the county pipeline.
type NJConfig struct {
	ReferenceName string                   `yaml:"reference_name"`
	Cases         DashboardConfig          `yaml:"cases"`
	Vaccine       DashboardConfig          `yaml:"vaccine"`
	LabelSuffixes []string                 `yaml:"label_suffixes"`
	Reference     normalizer.Reference     `yaml:"reference"`
	Discrepancies []normalizer.Discrepancy `yaml:"discrepancies"`
	Layers        []LayerConfig            `yaml:"layers"`
	ImageWidth    int                      `yaml:"image_width"`
	FailOnDropped bool                     `yaml:"fail_on_dropped"`
	Timezone      string                   `yaml:"timezone"`
}

// CaptionConfig configures the summary line written next to the Chicago maps.
type CaptionConfig struct {
	Template        string `yaml:"template"`
	Table           string `yaml:"table"`
	CountField      string `yaml:"count_field"`
	PopulationField string `yaml:"population_field"`
}

// ChicagoConfig configures the zip code pipeline.
type ChicagoConfig struct {
	Caption     CaptionConfig `yaml:"caption"`
	Vaccination SocrataConfig `yaml:"vaccination"`
	Deaths      SocrataConfig `yaml:"deaths"`
	Layers      []LayerConfig `yaml:"layers"`
	ImageWidth  int           `yaml:"image_width"`
	Timezone    string        `yaml:"timezone"`
}

// MetricsConfig selects where the run metrics are flushed. Both are optional.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
	PushURL  string `yaml:"push_url"`
	Job      string `yaml:"job"`
}

// TracingConfig configures the OTLP/HTTP trace exporter.
type TracingConfig struct {
	Headers     map[string]string `yaml:"headers"`
	Endpoint    string            `yaml:"endpoint"`
	ServiceName string            `yaml:"service_name"`
}

// LoadConfig loads path, merges an optional <name>.local.<ext> next to it,
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	local, err := os.ReadFile(LocalPath(path))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read local config file: %w", err)
	}

	if len(local) > 0 {
		var override Config
		if err := yaml.Unmarshal(local, &override); err != nil {
			return nil, fmt.Errorf("failed to parse local YAML: %w", err)
		}

		if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge local config: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LocalPath returns the override file for path: conf/app.yaml -> conf/app.local.yaml.
func LocalPath(path string) string {
	ext := filepath.Ext(path)

	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Retry.Budget < 0 {
		return ErrInvalidRetryBudget
	}

	if c.Retry.BackoffMs < 0 {
		return ErrInvalidBackoff
	}

	if c.HTTP.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if c.HTTP.RequestsPerSecond <= 0 {
		return ErrInvalidRate
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{"": true, "text": true, "json": true, "console": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return ErrInvalidLogFormat
	}

	if c.Run.DataDir == "" || c.Run.ImageDir == "" || c.Run.ExportDir == "" {
		return ErrMissingOutputDir
	}

	for name, tz := range map[string]string{"run": c.Run.Timezone, "nj": c.NJ.Timezone, "chicago": c.Chicago.Timezone} {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%s.timezone: %w", name, err)
		}
	}

	for name, colors := range c.Palettes {
		if _, err := binner.NewPalette(colors); err != nil {
			return fmt.Errorf("palettes.%s: %w", name, err)
		}
	}

	if err := c.validateNJ(); err != nil {
		return err
	}

	return c.validateChicago()
}

func (c *Config) validateNJ() error {
	for _, d := range []DashboardConfig{c.NJ.Cases, c.NJ.Vaccine} {
		if err := d.validate(); err != nil {
			return fmt.Errorf("nj.%s: %w", d.Name, err)
		}
	}

	if c.NJ.Cases.Name == c.NJ.Vaccine.Name {
		return fmt.Errorf("%w: nj sources both named %q", ErrDuplicateSource, c.NJ.Cases.Name)
	}

	if err := c.NJ.Reference.Validate(); err != nil {
		return fmt.Errorf("nj.reference: %w", err)
	}

	if c.NJ.ReferenceName == "" {
		return fmt.Errorf("%w: nj.reference_name is required", ErrInvalidLayer)
	}

	tables := map[string]bool{"joined": true, "normalized": true, "per_capita": true, "share": true}

	return c.validateLayers("nj", c.NJ.Layers, tables)
}

func (c *Config) validateChicago() error {
	for _, s := range []SocrataConfig{c.Chicago.Vaccination, c.Chicago.Deaths} {
		if err := s.validate(); err != nil {
			return fmt.Errorf("chicago.%s: %w", s.Name, err)
		}
	}

	if c.Chicago.Vaccination.Name == c.Chicago.Deaths.Name {
		return fmt.Errorf("%w: chicago sources both named %q", ErrDuplicateSource, c.Chicago.Vaccination.Name)
	}

	tables := map[string]bool{c.Chicago.Vaccination.Name: true, c.Chicago.Deaths.Name: true}

	if err := c.validateLayers("chicago", c.Chicago.Layers, tables); err != nil {
		return err
	}

	caption := c.Chicago.Caption
	if caption.Template == "" || caption.CountField == "" || caption.PopulationField == "" || !tables[caption.Table] {
		return ErrMissingCaption
	}

	return nil
}

func (c *Config) validateLayers(prefix string, layers []LayerConfig, tables map[string]bool) error {
	for i, l := range layers {
		switch {
		case l.Name == "" || l.Field == "" || l.Template == "":
			return fmt.Errorf("%w: %s.layers[%d] needs name, field and template", ErrInvalidLayer, prefix, i)
		case !tables[l.Table]:
			return fmt.Errorf("%w: %s.layers[%d] references unknown table %q", ErrInvalidLayer, prefix, i, l.Table)
		}

		if _, ok := c.Palettes[l.Palette]; !ok {
			return fmt.Errorf("%w: %q in %s.layers[%d]", ErrUnknownPalette, l.Palette, prefix, i)
		}

		if _, err := binner.ParseMode(l.Mode); err != nil {
			return fmt.Errorf("%s.layers[%d]: %w", prefix, i, err)
		}
	}

	return nil
}

func (d DashboardConfig) validate() error {
	if d.URL == "" && d.File == "" {
		return ErrSourceMissingURL
	}

	if d.RowSelector == "" {
		return ErrSourceMissingRows
	}

	if !d.DeriveSchema {
		if _, err := d.Schema(); err != nil {
			return err
		}
	}

	return nil
}

func (s SocrataConfig) validate() error {
	if s.URL == "" && s.File == "" {
		return ErrSourceMissingURL
	}

	if s.KeyColumn == "" || s.SnapshotColumn == "" {
		return ErrSourceMissingColumn
	}

	_, err := s.Schema()

	return err
}

// Schema returns the declared schema of the dashboard.
func (d DashboardConfig) Schema() (table.Schema, error) {
	if len(d.Fields) == 0 {
		return table.Schema{}, ErrSourceMissingFields
	}

	fields := make([]table.Field, len(d.Fields))

	for i, f := range d.Fields {
		kind, err := table.ParseKind(f.Kind)
		if err != nil {
			return table.Schema{}, err
		}

		fields[i] = table.Field{Name: f.Name, Kind: kind}
	}

	return table.NewSchema(fields...)
}

// Schema returns the schema of the selected view columns.
func (s SocrataConfig) Schema() (table.Schema, error) {
	if len(s.Fields) == 0 {
		return table.Schema{}, ErrSourceMissingFields
	}

	fields := make([]table.Field, len(s.Fields))

	for i, f := range s.Fields {
		kind, err := table.ParseKind(f.Kind)
		if err != nil {
			return table.Schema{}, err
		}

		fields[i] = table.Field{Name: f.Name, Kind: kind}
	}

	return table.NewSchema(fields...)
}

// Columns returns the view column references in field order.
func (s SocrataConfig) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Column
	}

	return cols
}

// GetBackoff returns the constant pause between fetch attempts.
func (rp RetryPolicy) GetBackoff() time.Duration {
	return time.Duration(rp.BackoffMs) * time.Millisecond
}

// GetTimeout returns the HTTP timeout.
func (h HTTPConfig) GetTimeout() time.Duration {
	return time.Duration(h.TimeoutSec) * time.Second
}

// Location returns tz, falling back to run.timezone when tz is empty.
func (c *Config) Location(tz string) string {
	if tz == "" {
		return c.Run.Timezone
	}

	return tz
}

// Palette returns the validated palette called name.
func (c *Config) Palette(name string) (binner.Palette, error) {
	colors, ok := c.Palettes[name]
	if !ok {
		return binner.Palette{}, fmt.Errorf("%w: %q", ErrUnknownPalette, name)
	}

	return binner.NewPalette(colors)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Budget: %d, Backoff: %s, NJ layers: %d, Chicago layers: %d}",
		c.Retry.Budget,
		c.Retry.GetBackoff(),
		len(c.NJ.Layers),
		len(c.Chicago.Layers),
	)
}
