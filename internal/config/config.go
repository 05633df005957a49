package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
	"gopkg.in/yaml.v3"
)

// Motor link types.
const (
	MotorSerial = "serial" // Arduino-class controller on a serial line
	MotorGPIO   = "gpio"   // A4988 driven directly from the Pi header
)

// Camera types.
const (
	CameraSynthetic = "synthetic" // generated test pattern
	CameraNone      = "none"      // no sensor attached; viewer only
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 64 << 10

// SerialConfig selects the port of the motor controller.
type SerialConfig struct {
	Port              string `yaml:"port"` // empty = auto-detect
	motor.PortOptions `yaml:",inline"`
	ReadTimeoutMs     int `yaml:"read_timeout_ms"`
}

// MotorConfig selects how step commands reach the turntable.
type MotorConfig struct {
	Type               string `yaml:"type"` // "serial" or "gpio"
	StepPin            int    `yaml:"step_pin"`
	DirPin             int    `yaml:"dir_pin"`
	EnablePin          int    `yaml:"enable_pin"` // 0 = not wired. Active LOW.
	InvertDir          bool   `yaml:"invert_dir"`
	StepsPerRev        int    `yaml:"steps_per_rev"`
	Microstepping      int    `yaml:"microstepping"`
	MoveSpeedMs        int    `yaml:"move_speed_ms"`         // delay per microstep
	QuarterStepsPerRev int    `yaml:"quarter_steps_per_rev"` // command units in one turn
}

// CameraConfig describes the frame source.
type CameraConfig struct {
	Type   string  `yaml:"type"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
}

// OutputConfig says where photos and the capture log go.
type OutputConfig struct {
	Folder      string `yaml:"folder"` // empty = platform pictures directory
	JPEGQuality int    `yaml:"jpeg_quality"`
	Database    string `yaml:"database"` // empty = no capture log
}

// CaptureConfig holds the initial session settings.
type CaptureConfig struct {
	PhotosPerRow int `yaml:"photos_per_row"`
	Row          int `yaml:"row"`
}

// WebConfig holds the control panel settings.
type WebConfig struct {
	Host string `yaml:"host"` // empty = all interfaces
	Port int    `yaml:"port"`
	// AllowAnyFolder lets web clients save to any absolute folder instead
	// of output.folder and the pictures directory only.
	AllowAnyFolder bool `yaml:"allow_any_folder"`
}

// DefaultsConfig contains process-wide switches.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`
}

// Config aggregates all application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Motor    MotorConfig    `yaml:"motor"`
	Camera   CameraConfig   `yaml:"camera"`
	Output   OutputConfig   `yaml:"output"`
	Capture  CaptureConfig  `yaml:"capture"`
	Web      WebConfig      `yaml:"web"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.normalize(); err != nil {
		panic(err) // defaults are always valid
	}
	return cfg
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills defaults and validates.
func (c *Config) normalize() error {
	opts, err := c.Serial.PortOptions.Normalize()
	if err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	c.Serial.PortOptions = opts
	if c.Serial.ReadTimeoutMs < 0 {
		return fmt.Errorf("serial.read_timeout_ms must be >= 0, got %d", c.Serial.ReadTimeoutMs)
	}
	if c.Serial.ReadTimeoutMs == 0 {
		c.Serial.ReadTimeoutMs = 2000
	}

	c.Motor.Type = strings.ToLower(strings.TrimSpace(c.Motor.Type))
	if c.Motor.Type == "" {
		c.Motor.Type = MotorSerial
	}
	if c.Motor.StepsPerRev <= 0 {
		c.Motor.StepsPerRev = 200
	}
	if c.Motor.Microstepping <= 0 {
		c.Motor.Microstepping = 4
	}
	if c.Motor.MoveSpeedMs <= 0 {
		c.Motor.MoveSpeedMs = 2
	}
	if c.Motor.QuarterStepsPerRev <= 0 {
		c.Motor.QuarterStepsPerRev = turntable.StepsPerRevolution
	}
	switch c.Motor.Type {
	case MotorSerial:
	case MotorGPIO:
		if c.Motor.StepPin <= 0 || c.Motor.DirPin <= 0 {
			return fmt.Errorf("motor.step_pin and motor.dir_pin are required for motor.type %q", MotorGPIO)
		}
		micro := c.Motor.StepsPerRev * c.Motor.Microstepping
		if micro%c.Motor.QuarterStepsPerRev != 0 {
			return fmt.Errorf("motor: %d microsteps per turn is not a multiple of %d quarter steps",
				micro, c.Motor.QuarterStepsPerRev)
		}
	default:
		return fmt.Errorf("unsupported motor.type %q (want %q or %q)", c.Motor.Type, MotorSerial, MotorGPIO)
	}

	c.Camera.Type = strings.ToLower(strings.TrimSpace(c.Camera.Type))
	if c.Camera.Type == "" {
		c.Camera.Type = CameraSynthetic
	}
	if c.Camera.Type != CameraSynthetic && c.Camera.Type != CameraNone {
		return fmt.Errorf("unsupported camera.type %q (want %q or %q)", c.Camera.Type, CameraSynthetic, CameraNone)
	}
	if c.Camera.Width <= 0 {
		c.Camera.Width = 640
	}
	if c.Camera.Height <= 0 {
		c.Camera.Height = 480
	}
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = 12 // the depth camera's color stream at 1280x960
	}

	if c.Output.JPEGQuality == 0 {
		c.Output.JPEGQuality = 90
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be between 1 and 100, got %d", c.Output.JPEGQuality)
	}
	if c.Output.Folder != "" {
		c.Output.Folder = filepath.Clean(c.Output.Folder)
	}

	if c.Capture.PhotosPerRow == 0 {
		c.Capture.PhotosPerRow = 100
	}
	if !turntable.ValidPhotosPerRow(c.Capture.PhotosPerRow) {
		return fmt.Errorf("capture.photos_per_row must be one of %v, got %d", turntable.PhotosPerRowChoices, c.Capture.PhotosPerRow)
	}
	if c.Capture.Row < 0 {
		return fmt.Errorf("capture.row must be >= 0, got %d", c.Capture.Row)
	}

	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be 1-65535, got %d", c.Web.Port)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ApplyEnv overrides file values with TURNGO_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TURNGO_SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("TURNGO_OUTPUT_FOLDER"); v != "" {
		c.Output.Folder = filepath.Clean(v)
	}
}

// ReadTimeout is how long the link waits for the controller's reply.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

// MoveSpeed returns the duration of one microstep.
func (c *Config) MoveSpeed() time.Duration {
	return time.Duration(c.Motor.MoveSpeedMs) * time.Millisecond
}

// FrameInterval returns the period between two frames of the source.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Camera.FPS)
}
