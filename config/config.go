// Package config loads pdfstamp settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/georgepadayatti/pdfstamp/pdf/fonts"
	"github.com/georgepadayatti/pdfstamp/pdf/layout"
	"github.com/georgepadayatti/pdfstamp/pdf/text"
	"github.com/georgepadayatti/pdfstamp/stamp"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrUnexpectedField      = errors.New("unexpected field in configuration")
)

// ConfigError represents a configuration error with context. It matches
// ErrConfigurationError with errors.Is.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConfigurationError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigurationError
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func wrapConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: err.Error(), Err: err}
}

// DocumentConfig names the document shown on the badge.
type DocumentConfig struct {
	// Number is derived from the input when empty.
	Number string `yaml:"number" json:"number,omitempty"`
}

// FontsConfig contains the TrueType font paths. Empty paths select the
// embedded Go fonts.
type FontsConfig struct {
	Regular string `yaml:"regular" json:"regular,omitempty"`
	Bold    string `yaml:"bold" json:"bold,omitempty"`
}

// PageConfig contains the size of appended pages.
type PageConfig struct {
	// Size is a page size name such as A4 or letter-landscape.
	Size string `yaml:"size" json:"size"`
}

// BadgeConfig contains the placement and style of the badge.
type BadgeConfig struct {
	Title         string  `yaml:"title" json:"title"`
	DocumentLabel string  `yaml:"document_label" json:"document_label"`
	Left          float64 `yaml:"left" json:"left"`
	Bottom        float64 `yaml:"bottom" json:"bottom"`
	Width         float64 `yaml:"width" json:"width"`
	BandHeight    float64 `yaml:"band_height" json:"band_height"`
	// Background is the band color, or "none".
	Background  string  `yaml:"background" json:"background"`
	Color       string  `yaml:"color" json:"color"`
	BorderWidth float64 `yaml:"border_width" json:"border_width"`
	FontSize    float64 `yaml:"font_size" json:"font_size"`
}

// SetDefaults fills empty text and style values.
func (c *BadgeConfig) SetDefaults() {
	d := defaultBadgeConfig()
	if c.Title == "" {
		c.Title = d.Title
	}
	if c.DocumentLabel == "" {
		c.DocumentLabel = d.DocumentLabel
	}
	if c.Background == "" {
		c.Background = d.Background
	}
	if c.Color == "" {
		c.Color = d.Color
	}
	if c.FontSize == 0 {
		c.FontSize = d.FontSize
	}
}

// Validate validates the badge configuration.
func (c *BadgeConfig) Validate() error {
	if c.Width <= 0 {
		return NewConfigError("badge.width", "must be positive")
	}
	if c.BandHeight < 0 {
		return NewConfigError("badge.band_height", "must not be negative")
	}
	if c.BorderWidth < 0 {
		return NewConfigError("badge.border_width", "must not be negative")
	}
	if c.FontSize <= 0 {
		return NewConfigError("badge.font_size", "must be positive")
	}
	if !strings.EqualFold(c.Background, "none") {
		if _, err := text.ParseColor(c.Background); err != nil {
			return wrapConfigError("badge.background", err)
		}
	}
	if _, err := text.ParseColor(c.Color); err != nil {
		return wrapConfigError("badge.color", err)
	}
	return nil
}

// CertificatesConfig contains the layout of the appended certificate
// pages.
type CertificatesConfig struct {
	PerPage        int     `yaml:"per_page" json:"per_page"`
	Columns        int     `yaml:"columns" json:"columns"`
	Margin         float64 `yaml:"margin" json:"margin"`
	Gap            float64 `yaml:"gap" json:"gap"`
	WarningHeight  float64 `yaml:"warning_height" json:"warning_height"`
	WarningPadding float64 `yaml:"warning_padding" json:"warning_padding"`
	WarningText    string  `yaml:"warning_text" json:"warning_text"`
	Holder         string  `yaml:"holder" json:"holder"`
	Label          string  `yaml:"label" json:"label"`
	Since          string  `yaml:"since" json:"since"`
	Color          string  `yaml:"color" json:"color"`
	BorderWidth    float64 `yaml:"border_width" json:"border_width"`
	FontSize       float64 `yaml:"font_size" json:"font_size"`
}

// SetDefaults fills empty text and style values.
func (c *CertificatesConfig) SetDefaults() {
	d := defaultCertificatesConfig()
	if c.WarningText == "" {
		c.WarningText = d.WarningText
	}
	if c.Holder == "" {
		c.Holder = d.Holder
	}
	if c.Label == "" {
		c.Label = d.Label
	}
	if c.Since == "" {
		c.Since = d.Since
	}
	if c.Color == "" {
		c.Color = d.Color
	}
	if c.FontSize == 0 {
		c.FontSize = d.FontSize
	}
}

// Validate validates the certificate page configuration.
func (c *CertificatesConfig) Validate() error {
	switch {
	case c.PerPage < 1:
		return NewConfigError("certificates.per_page", "must be at least 1")
	case c.Columns < 1:
		return NewConfigError("certificates.columns", "must be at least 1")
	case c.Margin < 0:
		return NewConfigError("certificates.margin", "must not be negative")
	case c.Gap < 0:
		return NewConfigError("certificates.gap", "must not be negative")
	case c.WarningHeight < 0:
		return NewConfigError("certificates.warning_height", "must not be negative")
	case c.WarningPadding < 0:
		return NewConfigError("certificates.warning_padding", "must not be negative")
	case c.BorderWidth < 0:
		return NewConfigError("certificates.border_width", "must not be negative")
	case c.FontSize <= 0:
		return NewConfigError("certificates.font_size", "must be positive")
	}
	if _, err := text.ParseColor(c.Color); err != nil {
		return wrapConfigError("certificates.color", err)
	}
	return nil
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json, auto).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "auto"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate validates the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return NewConfigError("logging.level", fmt.Sprintf("unknown level %q", c.Level))
	}
	switch strings.ToLower(c.Format) {
	case "text", "json", "auto":
	default:
		return NewConfigError("logging.format", fmt.Sprintf("unknown format %q", c.Format))
	}
	return nil
}

// Config contains the complete pdfstamp configuration.
type Config struct {
	Input  string `yaml:"input" json:"input,omitempty"`
	Output string `yaml:"output" json:"output,omitempty"`
	// Mode is all, badge or certificates.
	Mode string `yaml:"mode" json:"mode"`
	// Signatures is the number of certificate cells.
	Signatures int `yaml:"signatures" json:"signatures"`

	Document     DocumentConfig     `yaml:"document" json:"document"`
	Fonts        FontsConfig        `yaml:"fonts" json:"fonts"`
	Page         PageConfig         `yaml:"page" json:"page"`
	Badge        BadgeConfig        `yaml:"badge" json:"badge"`
	Certificates CertificatesConfig `yaml:"certificates" json:"certificates"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
}

func defaultBadgeConfig() BadgeConfig {
	b := stamp.DefaultBadge()
	return BadgeConfig{
		Title:         b.Title,
		DocumentLabel: b.DocumentLabel,
		Left:          b.Left,
		Bottom:        b.Bottom,
		Width:         b.Width,
		BandHeight:    b.BandHeight,
		Background:    b.Background.Hex(),
		Color:         b.Style.Color.Hex(),
		BorderWidth:   b.Style.BorderWidth,
		FontSize:      b.Style.FontSize,
	}
}

func defaultCertificatesConfig() CertificatesConfig {
	o := stamp.DefaultCertificateOptions()
	return CertificatesConfig{
		PerPage:        o.Capacity,
		Columns:        o.Columns,
		Margin:         o.Margin,
		Gap:            o.Gap,
		WarningHeight:  o.WarningHeight,
		WarningPadding: o.WarningPadding,
		WarningText:    o.WarningText,
		Holder:         o.Holder,
		Label:          o.Label,
		Since:          o.Since,
		Color:          o.Style.Color.Hex(),
		BorderWidth:    o.Style.BorderWidth,
		FontSize:       o.Style.FontSize,
	}
}

// Default returns the configuration that reproduces the default badge
// and 16 certificates on A4.
func Default() *Config {
	c := &Config{
		Mode:         string(stamp.ModeAll),
		Signatures:   stamp.DefaultCertificateOptions().Signatures,
		Page:         PageConfig{Size: "A4"},
		Badge:        defaultBadgeConfig(),
		Certificates: defaultCertificatesConfig(),
	}
	c.Logging.SetDefaults()
	return c
}

// SetDefaults fills every empty section value.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = string(stamp.ModeAll)
	}
	if c.Page.Size == "" {
		c.Page.Size = "A4"
	}
	c.Badge.SetDefaults()
	c.Certificates.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	if _, err := stamp.ParseMode(c.Mode); err != nil {
		return wrapConfigError("mode", err)
	}
	if c.Signatures < 0 {
		return NewConfigError("signatures", "must not be negative")
	}
	if _, err := layout.ParsePageSize(c.Page.Size); err != nil {
		return wrapConfigError("page.size", err)
	}
	if err := c.Badge.Validate(); err != nil {
		return err
	}
	if err := c.Certificates.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// RequireFiles checks that the input and output paths are set.
func (c *Config) RequireFiles() error {
	if c.Input == "" {
		return &ConfigError{Field: "input", Message: "required field is missing", Err: ErrMissingRequiredField}
	}
	if c.Output == "" {
		return &ConfigError{Field: "output", Message: "required field is missing", Err: ErrMissingRequiredField}
	}
	return nil
}

// LoadConfig loads a configuration from a YAML file. Relative paths in
// the file are resolved against the file's directory.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	config.resolvePaths(filepath.Dir(filename))
	return config, nil
}

// ParseConfig parses configuration from YAML data over the defaults.
// Unknown fields are rejected.
func ParseConfig(data []byte) (*Config, error) {
	config := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedField, err)
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigFromMap loads configuration from a map.
func LoadConfigFromMap(data map[string]any) (*Config, error) {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config map: %w", err)
	}
	return ParseConfig(yamlData)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Input, &c.Output, &c.Fonts.Regular, &c.Fonts.Bold} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	if out := c.Logging.Output; out != "stdout" && out != "stderr" && !filepath.IsAbs(out) {
		c.Logging.Output = filepath.Join(dir, out)
	}
}

// StampOptions converts the configuration into transform options and
// loads the configured fonts.
func (c *Config) StampOptions() (*stamp.Options, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	mode, _ := stamp.ParseMode(c.Mode)
	pageSize, _ := layout.ParsePageSize(c.Page.Size)

	opts := stamp.DefaultOptions()
	opts.Mode = mode
	opts.DocumentNumber = c.Document.Number

	b := c.Badge
	badgeColor, _ := text.ParseColor(b.Color)
	badge := stamp.DefaultBadge()
	badge.Title = b.Title
	badge.DocumentLabel = b.DocumentLabel
	badge.Left, badge.Bottom, badge.Width, badge.BandHeight = b.Left, b.Bottom, b.Width, b.BandHeight
	badge.Background = nil
	if !strings.EqualFold(b.Background, "none") {
		bg, _ := text.ParseColor(b.Background)
		badge.Background = &bg
	}
	badge.Style.Color = badgeColor
	badge.Style.BorderWidth = b.BorderWidth
	badge.Style.FontSize = b.FontSize
	opts.Badge = badge

	cc := c.Certificates
	certColor, _ := text.ParseColor(cc.Color)
	certs := stamp.DefaultCertificateOptions()
	certs.Signatures = c.Signatures
	certs.Capacity = cc.PerPage
	certs.Columns = cc.Columns
	certs.PageSize = pageSize
	certs.Margin, certs.Gap = cc.Margin, cc.Gap
	certs.WarningHeight, certs.WarningPadding = cc.WarningHeight, cc.WarningPadding
	certs.WarningText = cc.WarningText
	certs.Holder, certs.Label, certs.Since = cc.Holder, cc.Label, cc.Since
	certs.Style.Color = certColor
	certs.Style.BorderWidth = cc.BorderWidth
	certs.Style.FontSize = cc.FontSize
	opts.Certificates = certs

	var err error
	if c.Fonts.Regular != "" {
		if opts.RegularFont, err = fonts.LoadTrueTypeFile(c.Fonts.Regular); err != nil {
			return nil, wrapConfigError("fonts.regular", err)
		}
	}
	if c.Fonts.Bold != "" {
		if opts.BoldFont, err = fonts.LoadTrueTypeFile(c.Fonts.Bold); err != nil {
			return nil, wrapConfigError("fonts.bold", err)
		}
	}
	return opts, nil
}
