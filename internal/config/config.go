// Package config loads draw.cfg.json through viper and exposes typed views of it.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "draw.cfg.json"

// RenderConfig controls the render pass.
type RenderConfig struct {
	Throttle   time.Duration `json:"throttle" mapstructure:"throttle"`
	ColdSource string        `json:"coldSource" mapstructure:"coldSource"`
	HotSource  string        `json:"hotSource" mapstructure:"hotSource"`
	Layers     []string      `json:"layers" mapstructure:"layers"`
}

// DrawConfig controls editing behaviour.
type DrawConfig struct {
	// Interactive auto-selects features added through the API.
	Interactive bool `json:"interactive" mapstructure:"interactive"`
	// StrictGeometry validates input geometries before they are stored.
	StrictGeometry bool `json:"strictGeometry" mapstructure:"strictGeometry"`
	// DeselectAllViaCommit commits every selected id directly instead of
	// going through Deselect.
	DeselectAllViaCommit bool `json:"deselectAllViaCommit" mapstructure:"deselectAllViaCommit"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// JournalConfig controls the session event journal.
type JournalConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Path is a SQLite file. Empty keeps the journal in memory.
	Path string `json:"path" mapstructure:"path"`
}

// InfluxConfig holds the edit-activity metrics sink settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// URL returns the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./drawlogs")

	viper.SetDefault("render.throttle", "16ms")
	viper.SetDefault("render.coldSource", "draw-cold")
	viper.SetDefault("render.hotSource", "draw-hot")
	viper.SetDefault("render.layers", []string{"draw-cold", "draw-hot"})

	viper.SetDefault("draw.interactive", true)
	viper.SetDefault("draw.strictGeometry", false)
	viper.SetDefault("draw.deselectAllViaCommit", false)

	viper.SetDefault("journal.enabled", false)
	viper.SetDefault("journal.path", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "geodraw")
	viper.SetDefault("influx.bucket", "draw_activity")
	viper.SetDefault("influx.backupPath", "./drawlogs/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "geodraw")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetRenderConfig returns the render settings.
func GetRenderConfig() RenderConfig {
	return RenderConfig{
		Throttle:   viper.GetDuration("render.throttle"),
		ColdSource: viper.GetString("render.coldSource"),
		HotSource:  viper.GetString("render.hotSource"),
		Layers:     viper.GetStringSlice("render.layers"),
	}
}

// GetDrawConfig returns the editing settings.
func GetDrawConfig() DrawConfig {
	return DrawConfig{
		Interactive:          viper.GetBool("draw.interactive"),
		StrictGeometry:       viper.GetBool("draw.strictGeometry"),
		DeselectAllViaCommit: viper.GetBool("draw.deselectAllViaCommit"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetJournalConfig returns the journal settings.
func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled: viper.GetBool("journal.enabled"),
		Path:    viper.GetString("journal.path"),
	}
}

// GetInfluxConfig returns the InfluxDB sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Protocol:   viper.GetString("influx.protocol"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetGraylogConfig returns the Graylog settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
