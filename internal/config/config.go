package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models reelboard.yml.
type Config struct {
	Workspace struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"workspace"`
	Gantt    GanttConfig    `yaml:"gantt"`
	Timeline TimelineConfig `yaml:"timeline"`
	RBAC     struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type GanttConfig struct {
	Palette              []string          `yaml:"palette"`
	DefaultDueOffsetDays int               `yaml:"default_due_offset_days"`
	PastDueShiftDays     int               `yaml:"past_due_shift_days"`
	Stages               []StageConfig     `yaml:"stages"`
	StatusStages         map[string]string `yaml:"status_stages"`
	DefaultStage         string            `yaml:"default_stage"`
}

// StageConfig describes one step of the generated production schedule.
type StageConfig struct {
	Key            string `yaml:"key"`
	Title          string `yaml:"title"`
	Type           string `yaml:"type"`
	Duration       int    `yaml:"duration"`
	ShortDuration  int    `yaml:"short_duration"`
	ActiveStatus   string `yaml:"active_status"`
	ActiveProgress int    `yaml:"active_progress"`
}

type TimelineConfig struct {
	MaxSpanDays int `yaml:"max_span_days"`
	HistoryCap  int `yaml:"history_cap"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// MaxStages bounds the template so auto task ids (project*100+n) never collide across projects.
const MaxStages = 99

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.Timezone != "" {
		if _, err := time.LoadLocation(c.Workspace.Timezone); err != nil {
			return fmt.Errorf("config.workspace.timezone: %w", err)
		}
	}
	if len(c.Gantt.Palette) == 0 {
		return fmt.Errorf("config.gantt.palette is required")
	}
	for _, color := range c.Gantt.Palette {
		if !colorPattern.MatchString(color) {
			return fmt.Errorf("palette color %q must be #rrggbb", color)
		}
	}
	if c.Gantt.DefaultDueOffsetDays < 0 || c.Gantt.PastDueShiftDays < 0 {
		return fmt.Errorf("config.gantt offsets must not be negative")
	}
	if len(c.Gantt.Stages) == 0 {
		return fmt.Errorf("config.gantt.stages is required")
	}
	if len(c.Gantt.Stages) > MaxStages {
		return fmt.Errorf("config.gantt.stages allows at most %d stages", MaxStages)
	}
	keys := make(map[string]struct{}, len(c.Gantt.Stages))
	for i, st := range c.Gantt.Stages {
		if st.Key == "" {
			return fmt.Errorf("stage %d has empty key", i)
		}
		if _, dup := keys[st.Key]; dup {
			return fmt.Errorf("stage key %s is duplicated", st.Key)
		}
		keys[st.Key] = struct{}{}
		if st.Duration < 1 {
			return fmt.Errorf("stage %s duration must be at least 1 day", st.Key)
		}
		if st.ShortDuration < 0 {
			return fmt.Errorf("stage %s short_duration must not be negative", st.Key)
		}
		if st.ActiveProgress < 0 || st.ActiveProgress > 100 {
			return fmt.Errorf("stage %s active_progress must be within 0..100", st.Key)
		}
	}
	if c.Gantt.DefaultStage == "" {
		return fmt.Errorf("config.gantt.default_stage is required")
	}
	if _, ok := keys[c.Gantt.DefaultStage]; !ok {
		return fmt.Errorf("default stage %s is not defined", c.Gantt.DefaultStage)
	}
	for status, stage := range c.Gantt.StatusStages {
		if _, ok := keys[stage]; !ok {
			return fmt.Errorf("status %s maps to unknown stage %s", status, stage)
		}
	}
	if c.Timeline.MaxSpanDays < 1 {
		return fmt.Errorf("config.timeline.max_span_days must be positive")
	}
	if c.Timeline.HistoryCap < 1 {
		return fmt.Errorf("config.timeline.history_cap must be positive")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["admin"]; !ok {
			return fmt.Errorf("config.rbac.roles must include admin")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %s timeout must not be negative", hook.URL)
		}
	}
	return nil
}

// Location returns the configured timezone, falling back to Asia/Tokyo then UTC.
func (c *Config) Location() *time.Location {
	name := c.Workspace.Timezone
	if name == "" {
		name = "Asia/Tokyo"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// Permissions returns the permission set of a role.
func (c *Config) Permissions(role string) []string {
	if c == nil {
		return nil
	}
	return c.RBAC.Roles[role].Permissions
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reelboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("reelboard"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  name: %s
  timezone: Asia/Tokyo

gantt:
  palette: ["#4E79A7", "#F28E2B", "#E15759", "#76B7B2", "#59A14F", "#EDC948", "#B07AA1", "#FF9DA7"]
  default_due_offset_days: 21
  past_due_shift_days: 3
  default_stage: edit
  stages:
    - key: plan
      title: 企画・構成
      type: PLAN
      duration: 4
    - key: materials
      title: 素材準備
      type: MATERIAL
      duration: 3
    - key: edit
      title: 編集
      type: EDIT
      duration: 5
      short_duration: 3
    - key: review
      title: レビュー・修正
      type: REVIEW
      duration: 3
      active_status: レビュー中
      active_progress: 80
    - key: delivery
      title: 納品
      type: DELIVERY
      duration: 1
  status_stages:
    計画中: plan
    進行中: edit
    レビュー中: review
    完了: delivery

timeline:
  max_span_days: 180
  history_cap: 100

rbac:
  roles:
    admin:
      description: "Full access"
      permissions: [company.read, company.write, project.read, project.write, project.delete, task.read, task.write, task.delete, user.write, apikey.write]
    editor:
      description: "Edits tasks assigned to them"
      permissions: [company.read, project.read, project.write, task.read, task.write]
    client:
      description: "Read-only access for customers"
      permissions: [company.read, project.read, task.read]
    viewer:
      description: "Read-only access"
      permissions: [company.read, project.read, task.read]
`
