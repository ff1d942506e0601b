// Package config assembles the daemon configuration from defaults, an
// optional YAML file, BEAM_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/beam-controller/internal/adc"
	"github.com/sweeney/beam-controller/internal/gpio"
	"github.com/sweeney/beam-controller/internal/logic"
	"github.com/sweeney/beam-controller/internal/pwm"
)

// EnvPrefix is prepended to upper-cased flag names to form environment keys,
// e.g. --mqtt-broker is read from BEAM_MQTT_BROKER.
const EnvPrefix = "BEAM_"

// Config is the complete daemon configuration.
type Config struct {
	Calibration logic.Calibration `yaml:"calibration"`

	Tick      time.Duration `yaml:"tick"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	HTTPAddr  string        `yaml:"http_addr"`

	MQTT MQTTConfig `yaml:"mqtt"`
	GPIO GPIOConfig `yaml:"gpio"`
	ADC  ADCConfig  `yaml:"adc"`
	PWM  PWMConfig  `yaml:"pwm"`
	Log  LogConfig  `yaml:"log"`
}

// MQTTConfig configures the telemetry connection. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// GPIOConfig selects the request and indicator lines.
type GPIOConfig struct {
	Chip             string `yaml:"chip"`
	RequestPin       int    `yaml:"request_pin"`
	RequestActiveLow bool   `yaml:"request_active_low"`
	IndicatorPin     int    `yaml:"indicator_pin"` // -1 disables
}

// ADCConfig selects the IIO device and channels.
type ADCConfig struct {
	Device         string  `yaml:"device"`
	VoltageChannel int     `yaml:"voltage_channel"`
	LightChannel   int     `yaml:"light_channel"`
	VoltageScale   float64 `yaml:"voltage_scale"` // volts per count
}

// PWMConfig selects the light output channel.
type PWMConfig struct {
	Chip     string        `yaml:"chip"`
	Channel  int           `yaml:"channel"`
	Period   time.Duration `yaml:"period"`
	Inverted bool          `yaml:"inverted"` // smaller duty = brighter
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Calibration: logic.DefaultCalibration(),
		Tick:        time.Millisecond,
		Heartbeat:   15 * time.Minute,
		HTTPAddr:    ":80",
		MQTT: MQTTConfig{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "beam-controller",
			TopicPrefix: "vehicle/beam",
		},
		GPIO: GPIOConfig{
			Chip:         gpio.DefaultChip,
			RequestPin:   gpio.DefaultPinRequest,
			IndicatorPin: gpio.DefaultPinIndicator,
		},
		ADC: ADCConfig{
			Device:         adc.DefaultDevice,
			VoltageChannel: adc.DefaultVoltageChan,
			LightChannel:   adc.DefaultLightChan,
			VoltageScale:   adc.DefaultVoltageScale,
		},
		PWM: PWMConfig{
			Chip:    pwm.DefaultChip,
			Channel: 0,
			Period:  time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// BindFlags registers the daemon settings on fs, writing into c.
// Calibration is deliberately file-only.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&c.Tick, "tick", c.Tick, "Control loop tick interval")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")

	fs.StringVar(&c.MQTT.Broker, "mqtt-broker", c.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&c.MQTT.ClientID, "mqtt-client-id", c.MQTT.ClientID, "MQTT client ID prefix")
	fs.StringVar(&c.MQTT.TopicPrefix, "mqtt-topic-prefix", c.MQTT.TopicPrefix, "MQTT topic prefix")
	fs.StringVar(&c.MQTT.Username, "mqtt-username", c.MQTT.Username, "MQTT username")
	fs.StringVar(&c.MQTT.Password, "mqtt-password", c.MQTT.Password, "MQTT password")

	fs.StringVar(&c.GPIO.Chip, "gpio-chip", c.GPIO.Chip, "GPIO character device")
	fs.IntVar(&c.GPIO.RequestPin, "pin-request", c.GPIO.RequestPin, "Line offset of the request switch")
	fs.BoolVar(&c.GPIO.RequestActiveLow, "request-active-low", c.GPIO.RequestActiveLow, "Request switch pulls the line low")
	fs.IntVar(&c.GPIO.IndicatorPin, "pin-indicator", c.GPIO.IndicatorPin, "Line offset of the indicator (-1 to disable)")

	fs.StringVar(&c.ADC.Device, "adc-device", c.ADC.Device, "IIO device directory")
	fs.IntVar(&c.ADC.VoltageChannel, "adc-voltage-channel", c.ADC.VoltageChannel, "IIO channel of the battery divider")
	fs.IntVar(&c.ADC.LightChannel, "adc-light-channel", c.ADC.LightChannel, "IIO channel of the light sensor")
	fs.Float64Var(&c.ADC.VoltageScale, "voltage-scale", c.ADC.VoltageScale, "Volts per ADC count")

	fs.StringVar(&c.PWM.Chip, "pwm-chip", c.PWM.Chip, "sysfs PWM chip directory")
	fs.IntVar(&c.PWM.Channel, "pwm-channel", c.PWM.Channel, "PWM channel of the light")
	fs.DurationVar(&c.PWM.Period, "pwm-period", c.PWM.Period, "PWM period")
	fs.BoolVar(&c.PWM.Inverted, "pwm-inverted", c.PWM.Inverted, "Smaller duty means brighter")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "Log format (text, json)")
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if not empty), then environment variables from lookup, then the
// flags explicitly set on fs.
func Load(path string, fs *pflag.FlagSet, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	replay := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	cfg.BindFlags(replay)

	var errs []error
	if lookup != nil {
		replay.VisitAll(func(f *pflag.Flag) {
			if v, ok := lookup(EnvName(f.Name)); ok {
				if err := replay.Set(f.Name, v); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", EnvName(f.Name), err))
				}
			}
		})
	}
	if fs != nil {
		fs.Visit(func(f *pflag.Flag) {
			if replay.Lookup(f.Name) == nil {
				return
			}
			if err := replay.Set(f.Name, f.Value.String()); err != nil {
				errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
			}
		})
	}
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}

	return cfg, cfg.Validate()
}

// EnvName returns the environment variable consulted for a flag.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration, including calibration.
func (c Config) Validate() error {
	var errs []error

	if err := c.Calibration.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Tick <= 0 || c.Tick >= logic.DebounceWindow {
		errs = append(errs, fmt.Errorf("tick %v must be positive and shorter than the %v debounce window", c.Tick, logic.DebounceWindow))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat %v must not be negative", c.Heartbeat))
	}
	if c.ADC.VoltageScale <= 0 {
		errs = append(errs, fmt.Errorf("voltage scale %v must be positive", c.ADC.VoltageScale))
	}
	if c.PWM.Period <= 0 {
		errs = append(errs, fmt.Errorf("pwm period %v must be positive", c.PWM.Period))
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		errs = append(errs, errors.New("mqtt topic prefix must not be empty"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// MarshalCalibration renders the calibration section as YAML.
func (c Config) MarshalCalibration() ([]byte, error) {
	return yaml.Marshal(struct {
		Calibration logic.Calibration `yaml:"calibration"`
	}{c.Calibration})
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds a logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
