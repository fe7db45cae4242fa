package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config mirrors the configuration file. JSON is valid YAML, so a plain
// {"ip": ..., "port": ...} file loads too.
type Config struct {
	IP      string            `yaml:"ip" validate:"required"`
	Port    Port              `yaml:"port" validate:"required,min=1,max=65535"`
	Timeout time.Duration     `yaml:"timeout" validate:"gte=0"`
	Source  SourceConfig      `yaml:"source"`
	Timers  TimersConfig      `yaml:"timers"`
	Server  ServerConfig      `yaml:"server"`
	Discord *DiscordBotConfig `yaml:"discord"`
	Log     LogConfig         `yaml:"log"`
}

type SourceConfig struct {
	Type     string                 `yaml:"type" default:"socketio" validate:"oneof=socketio mpd webhook"`
	Host     string                 `yaml:"host" default:"localhost"`
	Port     Port                   `yaml:"port" default:"3000" validate:"min=1,max=65535"`
	Settings map[string]interface{} `yaml:"settings"`
}

type TimersConfig struct {
	OnInterval     time.Duration `yaml:"on-interval" default:"5s" validate:"gt=0"`
	OffDelay       time.Duration `yaml:"off-delay" default:"60s" validate:"gt=0"`
	StateInterval  time.Duration `yaml:"state-interval" default:"120s" validate:"gt=0"`
	ReconnectDelay time.Duration `yaml:"reconnect-delay" default:"2s" validate:"gt=0"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username" validate:"required_with=Password"`
	Password string `yaml:"password" validate:"required_with=Username"`
}

// Port accepts both 8080 and "8080".
type Port int

func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port must be a number", value.Line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid port %q", value.Line, value.Value)
	}
	*p = Port(n)
	return nil
}

func parseYAMLFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()
	config := Config{}
	decoder := yaml.NewDecoder(file)
	err = decoder.Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("error decoding YAML file %q: %w", filePath, err)
	}
	return &config, nil
}

// loadConfig reads the file, applies environment overrides and defaults, and
// validates the result.
func loadConfig(filePath string) (*Config, error) {
	config, err := parseYAMLFile(filePath)
	if err != nil {
		return nil, err
	}

	err = config.overrideFromEnv()
	if err != nil {
		return nil, err
	}

	err = defaults.Set(config)
	if err != nil {
		return nil, fmt.Errorf("error setting default values: %w", err)
	}

	validate := validator.New()
	err = validate.Struct(config)
	if err != nil {
		return nil, fmt.Errorf("error during configuration validation: %w", err)
	}

	return config, nil
}

func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("RELAY_IP"); v != "" {
		c.IP = v
	}
	if v := os.Getenv("RELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RELAY_PORT %q: %w", v, err)
		}
		c.Port = Port(port)
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		if c.Discord == nil {
			c.Discord = &DiscordBotConfig{}
		}
		c.Discord.BotToken = v
	}
	return nil
}

func parseConfigFile(filePath string) *Config {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	config, err := loadConfig(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration file %q: %s\n", filePath, err)
		os.Exit(1)
	}
	return config
}
