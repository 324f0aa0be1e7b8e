// Package config loads and validates the build configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
)

// Config represents the application configuration
type Config struct {
	Roots      RootsConfig    `yaml:"roots"`
	StateFile  string         `yaml:"state_file,omitempty"`
	Purge      bool           `yaml:"purge,omitempty"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	Logging    LoggingConfig  `yaml:"logging,omitempty"`
	Preview    PreviewConfig  `yaml:"preview,omitempty"`
	Events     EventsConfig   `yaml:"events,omitempty"`
	History    HistoryConfig  `yaml:"history,omitempty"`
	Watch      WatchConfig    `yaml:"watch,omitempty"`
	Rules      []RuleConfig   `yaml:"rules"`
}

// RootsConfig binds the three build roots to directories. Working is
// optional and defaults to a directory next to the state file.
type RootsConfig struct {
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
	Working string `yaml:"working,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// PreviewConfig controls the local preview server.
type PreviewConfig struct {
	Addr    string `yaml:"addr,omitempty"`
	Metrics bool   `yaml:"metrics,omitempty"`
}

// EventsConfig enables publishing run events to NATS.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// HistoryConfig enables the run-history database.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce,omitempty"`
	Interval Duration `yaml:"interval,omitempty"`
}

// RuleConfig binds a path pattern to a step and its output placements. The
// step name "ignore" is special: matched files are dropped from processing.
type RuleConfig struct {
	Name    string         `yaml:"name,omitempty"`
	Match   string         `yaml:"match"`
	Root    string         `yaml:"root,omitempty"` // input, working, or empty for whole paths
	Step    string         `yaml:"step"`
	Final   *bool          `yaml:"final,omitempty"` // defaults to true
	Outputs []OutputConfig `yaml:"outputs,omitempty"`
}

// OutputConfig describes where one output of a rule lands.
type OutputConfig struct {
	Dest     string `yaml:"dest,omitempty"` // output or working; default output
	Dir      string `yaml:"dir,omitempty"`  // literal directory alternative
	Ext      string `yaml:"ext,omitempty"`
	WebIndex bool   `yaml:"web_index,omitempty"`
	Slug     bool   `yaml:"slug,omitempty"`
}

// Duration wraps time.Duration for YAML decoding of strings like "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration from the specified file. Environment variables
// referenced as ${VAR} in the file are expanded; a .env file next to the
// working directory is loaded first if present.
func Load(configPath string) (*Config, error) {
	// Load .env if it exists; absence is fine.
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, builderr.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.StateFile == "" {
		c.StateFile = ".sitepress/state.json"
	}
	if c.Roots.Working == "" {
		c.Roots.Working = ".sitepress/working"
	}
	if c.Preview.Addr == "" {
		c.Preview.Addr = ":8080"
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "sitepress"
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(500 * time.Millisecond)
	}
	for i := range c.Rules {
		rule := &c.Rules[i]
		if rule.Name == "" {
			rule.Name = rule.Step
		}
		if len(rule.Outputs) == 0 {
			rule.Outputs = []OutputConfig{{Dest: "output"}}
		}
		for j := range rule.Outputs {
			if rule.Outputs[j].Dest == "" && rule.Outputs[j].Dir == "" {
				rule.Outputs[j].Dest = "output"
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Roots.Input == "" {
		return builderr.ConfigRequired("roots.input")
	}
	if c.Roots.Output == "" {
		return builderr.ConfigRequired("roots.output")
	}
	if len(c.Rules) == 0 {
		return builderr.ConfigRequired("rules")
	}
	for _, rule := range c.Rules {
		if rule.Match == "" {
			return builderr.ValidationFailed("rules."+rule.Name+".match", "pattern must not be empty")
		}
		if rule.Step == "" {
			return builderr.ValidationFailed("rules."+rule.Name+".step", "step must be named")
		}
		switch rule.Root {
		case "", "input", "working":
		default:
			return builderr.ValidationFailed("rules."+rule.Name+".root",
				fmt.Sprintf("unknown root %q", rule.Root))
		}
		for _, out := range rule.Outputs {
			switch out.Dest {
			case "", "output", "working":
			default:
				return builderr.ValidationFailed("rules."+rule.Name+".outputs.dest",
					fmt.Sprintf("unknown destination %q", out.Dest))
			}
		}
	}
	return nil
}

// IsFinal reports the rule's final flag, defaulting to true.
func (r RuleConfig) IsFinal() bool {
	if r.Final == nil {
		return true
	}
	return *r.Final
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	final := false
	example := Config{
		Roots: RootsConfig{
			Input:  "site",
			Output: "public",
		},
		Parameters: map[string]any{
			"site_name": "My Site",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Rules: []RuleConfig{
			{
				Name:  "pages",
				Match: `.*\.md$`,
				Root:  "input",
				Step:  "markdown",
				Outputs: []OutputConfig{
					{Dest: "output", Ext: ".html", WebIndex: true, Slug: true},
				},
			},
			{
				Name:    "assets",
				Match:   `static/.*`,
				Root:    "input",
				Step:    "copy",
				Final:   &final,
				Outputs: []OutputConfig{{Dest: "output"}},
			},
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
