package lab

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/rtlab/pkg/debounce"
	"github.com/robotalks/rtlab/pkg/kernel"
)

// Priorities assigns task priorities.
type Priorities struct {
	Timer     kernel.Priority `toml:"timer"`
	Buttons   kernel.Priority `toml:"buttons"`
	Display   kernel.Priority `toml:"display"`
	Worker    kernel.Priority `toml:"worker"`
	Telemetry kernel.Priority `toml:"telemetry"`
}

// Config holds the lab settings.
type Config struct {
	Profile string `toml:"profile"`
	// MQTTURL is the telemetry broker, e.g. mqtt://host:1883/rtlab/.
	// Events are logged when empty.
	MQTTURL string `toml:"mqtt_url"`

	Settle       time.Duration `toml:"settle"`
	DebounceMode string        `toml:"debounce_mode"`
	Refresh      time.Duration `toml:"refresh"`
	ADCPeriod    time.Duration `toml:"adc_period"`
	BlinkUnit    time.Duration `toml:"blink_unit"`
	LockTimeout  time.Duration `toml:"lock_timeout"`
	SendTimeout  time.Duration `toml:"send_timeout"`

	SymbolQueue    int `toml:"symbol_queue"`
	CommandQueue   int `toml:"command_queue"`
	TimerQueue     int `toml:"timer_queue"`
	TelemetryQueue int `toml:"telemetry_queue"`
	Digits         int `toml:"digits"`

	Priorities Priorities `toml:"priorities"`
}

var defaultConfig = Config{
	Profile:        "pipeline",
	Settle:         20 * time.Millisecond,
	DebounceMode:   debounce.Independent.String(),
	Refresh:        5 * time.Millisecond,
	ADCPeriod:      200 * time.Millisecond,
	BlinkUnit:      100 * time.Millisecond,
	LockTimeout:    kernel.WaitForever,
	SendTimeout:    10 * time.Millisecond,
	SymbolQueue:    5,
	CommandQueue:   5,
	TimerQueue:     4,
	TelemetryQueue: 64,
	Digits:         3,
	Priorities: Priorities{
		Timer:     kernel.PriorityTop,
		Buttons:   kernel.PriorityHigh,
		Display:   kernel.PriorityHigh,
		Worker:    kernel.PriorityNormal,
		Telemetry: kernel.PriorityIdle,
	},
}

func init() {
	if val := os.Getenv("RTLAB_PROFILE"); val != "" {
		defaultConfig.Profile = val
	}
	if val := os.Getenv("RTLAB_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Profile, "profile", defaultConfig.Profile, "Lab profile: "+strings.Join(ProfileNames(), ", ")+".")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for telemetry.")
	flag.DurationVar(&defaultConfig.Settle, "settle", defaultConfig.Settle, "Debounce settle window.")
	flag.StringVar(&defaultConfig.DebounceMode, "debounce-mode", defaultConfig.DebounceMode, "Buttons pressed together: independent or exclusive.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadConfig overlays the TOML file at path on conf. Unknown keys are
// rejected.
func LoadConfig(path string, conf *Config) error {
	md, err := toml.DecodeFile(path, conf)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for n, key := range undecoded {
			keys[n] = key.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks the settings profiles depend on.
func (c *Config) Validate() error {
	if _, err := debounce.ParseMode(c.DebounceMode); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"settle":     c.Settle,
		"refresh":    c.Refresh,
		"adc_period": c.ADCPeriod,
		"blink_unit": c.BlinkUnit,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: %w", name, kernel.ErrInvalidPeriod)
		}
	}
	for name, n := range map[string]int{
		"symbol_queue":    c.SymbolQueue,
		"command_queue":   c.CommandQueue,
		"timer_queue":     c.TimerQueue,
		"telemetry_queue": c.TelemetryQueue,
	} {
		if n < 1 {
			return fmt.Errorf("%s: %w", name, kernel.ErrInvalidCapacity)
		}
	}
	return nil
}
