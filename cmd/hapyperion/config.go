package main

import (
	"hapyperion"

	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// matches whole line comments in config file
	CONFIG_COMMENTS_RE = regexp.MustCompile(`(?m)^\s*//.*$`)

	// for MQTT server URI validation
	SERVER_URL_RE = regexp.MustCompile(`^[a-z]+://.*:[0-9]{1,5}$`)
)

type mqttConfig struct {
	Server      string `json:"Server" yaml:"server"`
	Username    string `json:"Username" yaml:"username"`
	Password    string `json:"Password" yaml:"password"`
	TopicPrefix string `json:"TopicPrefix" yaml:"topic_prefix"`
}

// config struct
type config struct {
	ListenAddr string   `json:"ListenAddr" yaml:"listen_addr"`
	Interfaces []string `json:"Interfaces" yaml:"interfaces"`

	Pin string `json:"Pin" yaml:"pin"`

	MQTT mqttConfig `json:"MQTT" yaml:"mqtt"`

	Accessories []hapyperion.LightConfig `json:"Accessories" yaml:"accessories"`
}

// Parses the config file. Files ending in .yaml or .yml are read as YAML,
// anything else as JSON with optional whole-line // comments.
func parseConfig(fname string) (cfg *config, err error) {
	cfgStr, err := os.ReadFile(fname)
	if err != nil {
		return
	}

	cfg = &config{
		MQTT: mqttConfig{TopicPrefix: hapyperion.MQTT_TOPIC_PREFIX},
	}

	switch strings.ToLower(filepath.Ext(fname)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(cfgStr, cfg)
	default:
		// remove line comments, json.Unmarshal can't parse them
		cfgStr = CONFIG_COMMENTS_RE.ReplaceAllLiteral(cfgStr, []byte{})
		err = json.Unmarshal(cfgStr, cfg)
	}
	if err != nil {
		return
	}

	err = cfg.validate()
	return
}

// sanity check
func (cfg *config) validate() error {
	if len(cfg.Accessories) == 0 {
		return fmt.Errorf("no accessories configured")
	}

	for i, acc := range cfg.Accessories {
		if _, err := acc.WithDefaults(); err != nil {
			return fmt.Errorf("accessory %d: %w", i, err)
		}
	}

	if cfg.MQTT.Server != "" && !SERVER_URL_RE.MatchString(cfg.MQTT.Server) {
		return fmt.Errorf("invalid MQTT server: needs to be in URL format with port")
	}

	// Validate that TopicPrefix is valid (must end in a /)
	if cfg.MQTT.TopicPrefix != "" && !strings.HasSuffix(cfg.MQTT.TopicPrefix, "/") {
		return fmt.Errorf("invalid TopicPrefix: must end with a /")
	}

	if cfg.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
			return fmt.Errorf("invalid ListenAddr: %v", err)
		}
	}

	return nil
}
