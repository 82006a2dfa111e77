// Package config loads the whackamole daemon configuration from YAML,
// applies environment overrides and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/whackamole/internal/channel"
	"github.com/sweeney/whackamole/internal/gpio"
	"github.com/sweeney/whackamole/internal/logic"
	"github.com/sweeney/whackamole/internal/mqtt"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Environment variables that override file values.
const (
	EnvBroker   = "WHACKAMOLE_MQTT_BROKER"
	EnvHTTPAddr = "WHACKAMOLE_HTTP_ADDR"
	EnvLogLevel = "WHACKAMOLE_LOG_LEVEL"
	EnvReadMode = "WHACKAMOLE_READ_MODE"
)

// SearchPaths are tried in order when no config path is given.
var SearchPaths = []string{
	"./whackamole.yaml",
	"/etc/whackamole/whackamole.yaml",
}

// Config holds the entire daemon configuration.
type Config struct {
	GPIO    GPIOConfig    `yaml:"gpio"`
	Channel ChannelConfig `yaml:"channel"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	MDNS    MDNSConfig    `yaml:"mdns"`
	Log     LogConfig     `yaml:"log"`
}

// GPIOConfig names the chip and the line offsets of each button and LED,
// indexed red, blue, green, yellow.
type GPIOConfig struct {
	Chip     string                `yaml:"chip"`
	Buttons  [logic.NumButtons]int `yaml:"buttons,flow"`
	LEDs     [logic.NumButtons]int `yaml:"leds,flow"`
	Debounce time.Duration         `yaml:"debounce"`
}

// ChannelConfig controls the command channel.
type ChannelConfig struct {
	ReadMode channel.Mode  `yaml:"read_mode"`
	Poll     time.Duration `yaml:"poll"`
}

// HTTPConfig controls the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig controls the broker bridge. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"`
}

// MDNSConfig controls advertising the status server on the LAN. It has no
// effect when the status server is disabled.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the configuration for the reference wiring.
func Default() Config {
	return Config{
		GPIO: GPIOConfig{
			Chip:     gpio.DefaultChip,
			Buttons:  gpio.DefaultButtonPins,
			LEDs:     gpio.DefaultLEDPins,
			Debounce: logic.DefaultRefractory,
		},
		Channel: ChannelConfig{
			ReadMode: channel.ModeEvent,
			Poll:     100 * time.Millisecond,
		},
		HTTP: HTTPConfig{Addr: ":80"},
		MQTT: MQTTConfig{
			Broker:   "tcp://192.168.1.200:1883",
			ClientID: "whackamole",
			Prefix:   mqtt.DefaultPrefix,
		},
		MDNS: MDNSConfig{Enabled: true, Instance: "whackamole"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (or the first
// of SearchPaths that exists when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		for _, p := range SearchPaths {
			if _, err := os.Stat(p); err == nil {
				file = p
				break
			}
		}
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvBroker); ok {
		c.MQTT.Broker = v
	}
	if v, ok := os.LookupEnv(EnvHTTPAddr); ok {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvReadMode); v != "" {
		m, err := channel.ParseMode(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvReadMode, err)
		}
		c.Channel.ReadMode = m
	}
	return nil
}

// Validate checks line offsets and intervals.
func (c *Config) Validate() error {
	var errs []error
	if c.GPIO.Chip == "" {
		errs = append(errs, errors.New("gpio.chip is empty"))
	}

	used := make(map[int]string, 2*logic.NumButtons)
	claim := func(offset int, what string) {
		if offset < 0 {
			errs = append(errs, fmt.Errorf("%s: negative line %d", what, offset))
			return
		}
		if prev, ok := used[offset]; ok {
			errs = append(errs, fmt.Errorf("%s: line %d already used by %s", what, offset, prev))
			return
		}
		used[offset] = what
	}
	for b := logic.ButtonIndex(0); b < logic.NumButtons; b++ {
		claim(c.GPIO.Buttons[b], b.Color()+" button")
		claim(c.GPIO.LEDs[b], b.Color()+" led")
	}

	if c.MDNS.Enabled && c.MDNS.Instance == "" {
		errs = append(errs, errors.New("mdns.instance is empty"))
	}
	if c.GPIO.Debounce < 0 {
		errs = append(errs, fmt.Errorf("gpio.debounce %v is negative", c.GPIO.Debounce))
	}
	if c.Channel.Poll <= 0 {
		errs = append(errs, fmt.Errorf("channel.poll %v must be positive", c.Channel.Poll))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Configure applies level and formatter to l.
func (lc LogConfig) Configure(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("%w: log level: %w", ErrInvalid, err)
	}
	l.SetLevel(level)
	switch strings.ToLower(lc.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
