package hapyperion

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	HYPERION_DEFAULT_PORT     = 8090
	HYPERION_DEFAULT_NAME     = "Hyperion"
	HYPERION_DEFAULT_PRIORITY = 100
)

// Configuration of a single Hyperion accessory.
// Host and URL are aliases, URL being the option name used by older configs.
type LightConfig struct {
	Accessory string   `json:"accessory" yaml:"accessory"`
	Name      string   `json:"name" yaml:"name"`
	Host      string   `json:"host" yaml:"host"`
	URL       string   `json:"url" yaml:"url"`
	Port      int      `json:"port" yaml:"port"`
	Priority  *int     `json:"priority" yaml:"priority"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
}

// Returns a copy of the config with defaults filled in.
// ErrMissingHost is returned if neither host nor url is set.
// Priority is only defaulted when absent.
func (c LightConfig) WithDefaults() (LightConfig, error) {
	if c.Host == "" {
		c.Host = c.URL
	}
	if c.Host == "" {
		return c, ErrMissingHost
	}

	if c.Accessory == "" {
		c.Accessory = ACCESSORY_TYPE_POWER
	}
	if c.Name == "" {
		c.Name = HYPERION_DEFAULT_NAME
	}
	if c.Port == 0 {
		c.Port = HYPERION_DEFAULT_PORT
	} else if c.Port < 0 || c.Port > 65535 {
		return c, fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := endpointURL(c.Host, c.Port); err != nil {
		return c, err
	}

	// 0 is a valid, if unusual, priority
	if c.Priority == nil {
		p := HYPERION_DEFAULT_PRIORITY
		c.Priority = &p
	} else if *c.Priority < 0 || *c.Priority > 255 {
		return c, fmt.Errorf("invalid priority %d", *c.Priority)
	}
	return c, nil
}

// A time.Duration that is written as a string ("5s") in config files
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
