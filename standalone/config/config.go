// Package config loads the controller configuration: a YAML file with
// GORBL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gorbl/core"
	"gorbl/report"
)

// Config is the complete controller configuration. Firmware settings ($
// numbers) are not part of it; they live in the NVS image.
type Config struct {
	LogLevel     string             `yaml:"log_level"`
	Link         LinkConfig         `yaml:"link"`
	NVSDir       string             `yaml:"nvs_dir"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Report       ReportConfig       `yaml:"report"`
	Motion       MotionConfig       `yaml:"motion"`
	Session      SessionConfig      `yaml:"session"`
	TMC          TMCConfig          `yaml:"tmc"`
	Bridge       BridgeConfig       `yaml:"bridge"`
	Mirror       MirrorConfig       `yaml:"mirror"`
}

// LinkConfig selects the protocol link
type LinkConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	Stdio  bool   `yaml:"stdio"`
}

// CapabilitiesConfig mirrors core.Capabilities
type CapabilitiesConfig struct {
	VariableSpindle  bool `yaml:"variable_spindle"`
	SpindleEncoder   bool `yaml:"spindle_encoder"`
	SpindleSync      bool `yaml:"spindle_sync"`
	MistControl      bool `yaml:"mist_control"`
	SafetyDoor       bool `yaml:"safety_door"`
	SoftwareDebounce bool `yaml:"software_debounce"`
	ParkingOverride  bool `yaml:"parking_override"`
	ManualToolChange bool `yaml:"manual_tool_change"`
	Tools            int  `yaml:"tools"`
}

// ReportConfig tunes the reporter
type ReportConfig struct {
	Info                     string        `yaml:"info"`
	AlarmDelay               time.Duration `yaml:"alarm_delay"`
	WCORefreshBusy           int           `yaml:"wco_refresh_busy"`
	WCORefreshIdle           int           `yaml:"wco_refresh_idle"`
	OvrRefreshBusy           int           `yaml:"ovr_refresh_busy"`
	OvrRefreshIdle           int           `yaml:"ovr_refresh_idle"`
	SuppressOverridesWithWCO *bool         `yaml:"suppress_overrides_with_wco"`
}

// MotionConfig tunes the simulated motion engine
type MotionConfig struct {
	BlockBufferSize int           `yaml:"block_buffer_size"`
	Tick            time.Duration `yaml:"tick"`
}

// SessionConfig tunes line handling
type SessionConfig struct {
	Echo       bool `yaml:"echo"`
	HomingLock bool `yaml:"homing_lock"`
}

// TMCConfig enables the TMC2130 driver settings
type TMCConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BridgeConfig is the websocket mirror of the output channel
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MirrorConfig is the Modbus TCP status mirror
type MirrorConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Endpoint     string        `yaml:"endpoint"`
	UnitID       uint8         `yaml:"unit_id"`
	BaseRegister uint16        `yaml:"base_register"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Load reads path (when not empty), applies the environment and defaults
// and validates the result
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getEnv("GORBL_LOG_LEVEL", cfg.LogLevel)
	cfg.Link.Device = getEnv("GORBL_LINK_DEVICE", cfg.Link.Device)
	cfg.Link.Baud = getEnvAsInt("GORBL_LINK_BAUD", cfg.Link.Baud)
	cfg.Link.Stdio = getEnvAsBool("GORBL_LINK_STDIO", cfg.Link.Stdio)
	cfg.NVSDir = getEnv("GORBL_NVS_DIR", cfg.NVSDir)
	cfg.Session.Echo = getEnvAsBool("GORBL_ECHO", cfg.Session.Echo)
	cfg.Bridge.Enabled = getEnvAsBool("GORBL_BRIDGE_ENABLED", cfg.Bridge.Enabled)
	cfg.Bridge.Listen = getEnv("GORBL_BRIDGE_LISTEN", cfg.Bridge.Listen)
	cfg.Mirror.Enabled = getEnvAsBool("GORBL_MIRROR_ENABLED", cfg.Mirror.Enabled)
	cfg.Mirror.Endpoint = getEnv("GORBL_MIRROR_ENDPOINT", cfg.Mirror.Endpoint)
}

// applyDefaults fills in missing values
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Link.Baud == 0 {
		cfg.Link.Baud = 115200
	}
	if cfg.Link.Device == "" {
		cfg.Link.Stdio = true
	}
	if cfg.NVSDir == "" {
		cfg.NVSDir = "nvs"
	}

	def := report.DefaultConfig()
	if cfg.Report.Info == "" {
		cfg.Report.Info = "SIM"
	}
	if cfg.Report.AlarmDelay == 0 {
		cfg.Report.AlarmDelay = def.AlarmDelay
	}
	if cfg.Report.WCORefreshBusy == 0 {
		cfg.Report.WCORefreshBusy = def.WCORefreshBusy
	}
	if cfg.Report.WCORefreshIdle == 0 {
		cfg.Report.WCORefreshIdle = def.WCORefreshIdle
	}
	if cfg.Report.OvrRefreshBusy == 0 {
		cfg.Report.OvrRefreshBusy = def.OvrRefreshBusy
	}
	if cfg.Report.OvrRefreshIdle == 0 {
		cfg.Report.OvrRefreshIdle = def.OvrRefreshIdle
	}
	if cfg.Report.SuppressOverridesWithWCO == nil {
		suppress := def.SuppressOverridesWithWCO
		cfg.Report.SuppressOverridesWithWCO = &suppress
	}

	if cfg.Motion.BlockBufferSize == 0 {
		cfg.Motion.BlockBufferSize = def.BlockBufferSize
	}
	if cfg.Motion.Tick == 0 {
		cfg.Motion.Tick = 5 * time.Millisecond
	}

	if cfg.Bridge.Listen == "" {
		cfg.Bridge.Listen = ":8080"
	}
	if cfg.Mirror.UnitID == 0 {
		cfg.Mirror.UnitID = 1
	}
	if cfg.Mirror.Interval == 0 {
		cfg.Mirror.Interval = 200 * time.Millisecond
	}
	if cfg.Mirror.Timeout == 0 {
		cfg.Mirror.Timeout = 2 * time.Second
	}
}

// Validate checks the configuration without changing it
func Validate(cfg *Config) error {
	if cfg.Link.Baud <= 0 {
		return fmt.Errorf("link: baud must be positive, got %d", cfg.Link.Baud)
	}
	if cfg.Capabilities.Tools < 0 {
		return fmt.Errorf("capabilities: tools must not be negative, got %d", cfg.Capabilities.Tools)
	}
	if cfg.Motion.BlockBufferSize < 2 {
		return fmt.Errorf("motion: block_buffer_size must be at least 2, got %d", cfg.Motion.BlockBufferSize)
	}
	r := cfg.Report
	for name, v := range map[string]int{
		"wco_refresh_busy": r.WCORefreshBusy,
		"wco_refresh_idle": r.WCORefreshIdle,
		"ovr_refresh_busy": r.OvrRefreshBusy,
		"ovr_refresh_idle": r.OvrRefreshIdle,
	} {
		if v < 1 {
			return fmt.Errorf("report: %s must be at least 1, got %d", name, v)
		}
	}
	if cfg.Mirror.Enabled && cfg.Mirror.Endpoint == "" {
		return errors.New("mirror: enabled but no endpoint set")
	}
	if cfg.Bridge.Enabled && cfg.Bridge.Listen == "" {
		return errors.New("bridge: enabled but no listen address set")
	}
	return nil
}

// Caps returns the driver capabilities
func (c *Config) Caps() core.Capabilities {
	cc := c.Capabilities
	return core.Capabilities{
		VariableSpindle:  cc.VariableSpindle,
		SpindleEncoder:   cc.SpindleEncoder,
		SpindleSync:      cc.SpindleSync,
		MistControl:      cc.MistControl,
		SafetyDoor:       cc.SafetyDoor,
		SoftwareDebounce: cc.SoftwareDebounce,
		ParkingOverride:  cc.ParkingOverride,
		ManualToolChange: cc.ManualToolChange,
		StepperCurrent:   c.TMC.Enabled,
		Tools:            cc.Tools,
	}
}

// ReportConfig builds the reporter configuration
func (c *Config) ReportConfig() report.Config {
	rc := report.DefaultConfig()
	rc.Caps = c.Caps()
	rc.Info = c.Report.Info
	rc.BlockBufferSize = c.Motion.BlockBufferSize
	rc.AlarmDelay = c.Report.AlarmDelay
	rc.WCORefreshBusy = c.Report.WCORefreshBusy
	rc.WCORefreshIdle = c.Report.WCORefreshIdle
	rc.OvrRefreshBusy = c.Report.OvrRefreshBusy
	rc.OvrRefreshIdle = c.Report.OvrRefreshIdle
	rc.SuppressOverridesWithWCO = *c.Report.SuppressOverridesWithWCO
	return rc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return val
}
