package eventbus

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the bus options.
type Config struct {
	Name         string `yaml:"name" json:"name"`
	MaxLoopTimes int    `yaml:"max_loop_times" json:"max_loop_times"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
	LogUnhandled bool   `yaml:"log_unhandled" json:"log_unhandled"`
}

func LoadConfigYAML(path string) (Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("%w: failed to unmarshal YAML: %v", ErrConfigInvalid, err)
	}
	return config, config.Validate()
}

func ParseConfigJSON(data []byte) (Config, error) {
	var config Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("%w: failed to unmarshal JSON: %v", ErrConfigInvalid, err)
	}
	return config, config.Validate()
}

// ConfigFromMap reads a Config from loosely typed settings, such as the ones
// decoded from environment variables or flags.
func ConfigFromMap(settings map[string]interface{}) (Config, error) {
	var config Config
	var err error
	if value, ok := settings[ConfigKeyName]; ok {
		if config.Name, err = cast.ToStringE(value); err != nil {
			return config, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, ConfigKeyName, err)
		}
	}
	if value, ok := settings[ConfigKeyMaxLoopTimes]; ok {
		if config.MaxLoopTimes, err = cast.ToIntE(value); err != nil {
			return config, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, ConfigKeyMaxLoopTimes, err)
		}
	}
	if value, ok := settings[ConfigKeyLogLevel]; ok {
		if config.LogLevel, err = cast.ToStringE(value); err != nil {
			return config, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, ConfigKeyLogLevel, err)
		}
	}
	if value, ok := settings[ConfigKeyLogUnhandled]; ok {
		if config.LogUnhandled, err = cast.ToBoolE(value); err != nil {
			return config, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, ConfigKeyLogUnhandled, err)
		}
	}
	return config, config.Validate()
}

func (config Config) Validate() error {
	if config.MaxLoopTimes < 0 || config.MaxLoopTimes > DefaultMaxLoopTimes {
		return fmt.Errorf("%w: %s must be between 0 and %d, got %d", ErrConfigInvalid, ConfigKeyMaxLoopTimes, DefaultMaxLoopTimes, config.MaxLoopTimes)
	}
	if config.LogLevel != "" {
		if _, err := logrus.ParseLevel(config.LogLevel); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfigInvalid, ConfigKeyLogLevel, err)
		}
	}
	return nil
}

// Options converts the config to bus options. Zero fields keep the defaults.
func (config Config) Options() ([]EventBusOption, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var options []EventBusOption
	if config.Name != "" {
		options = append(options, WithNameOption(config.Name))
	}
	if config.MaxLoopTimes != 0 {
		options = append(options, WithMaxLoopTimesOption(config.MaxLoopTimes))
	}
	logger := defaultLogger()
	if config.LogLevel != "" {
		level, _ := logrus.ParseLevel(config.LogLevel)
		logger = newLevelLogger(level)
		options = append(options, WithLoggerOption(logger))
	}
	if config.LogUnhandled {
		options = append(options, WithUnhandledOption(LogUnhandledHandler(logger.WithField("bus", config.busName()))))
	}
	return options, nil
}

func (config Config) busName() string {
	if config.Name == "" {
		return DefaultBusName
	}
	return config.Name
}

// NewLocalEventBusFromConfig builds a bus from config. options are applied
// after the config and override it.
func NewLocalEventBusFromConfig(config Config, options ...EventBusOption) (*LocalEventBus, error) {
	configured, err := config.Options()
	if err != nil {
		return nil, err
	}
	return NewLocalEventBus(append(configured, options...)...), nil
}
