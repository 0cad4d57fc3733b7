package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "reelboard", cfg.Workspace.Name)
	assert.Len(t, cfg.Gantt.Stages, 5)
	assert.Equal(t, "edit", cfg.Gantt.StatusStages["進行中"])
	assert.Equal(t, 180, cfg.Timeline.MaxSpanDays)
	assert.Contains(t, cfg.Permissions("editor"), "task.write")
	assert.NotContains(t, cfg.Permissions("viewer"), "task.write")
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad timezone":       func(c *Config) { c.Workspace.Timezone = "Mars/Olympus" },
		"empty palette":      func(c *Config) { c.Gantt.Palette = nil },
		"bad color":          func(c *Config) { c.Gantt.Palette = []string{"red"} },
		"duplicate stage":    func(c *Config) { c.Gantt.Stages[1].Key = c.Gantt.Stages[0].Key },
		"zero duration":      func(c *Config) { c.Gantt.Stages[0].Duration = 0 },
		"unknown default":    func(c *Config) { c.Gantt.DefaultStage = "color" },
		"unknown status map": func(c *Config) { c.Gantt.StatusStages["完了"] = "archive" },
		"no admin role":      func(c *Config) { delete(c.RBAC.Roles, "admin") },
		"webhook without url": func(c *Config) {
			c.Webhooks = []WebhookConfig{{Secret: "x"}}
		},
		"too many stages": func(c *Config) {
			for len(c.Gantt.Stages) <= MaxStages {
				st := c.Gantt.Stages[0]
				st.Key = st.Key + "x"
				c.Gantt.Stages = append(c.Gantt.Stages, st)
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Gantt.Stages, cfg.Gantt.Stages)

	_, err = Load(dir)
	assert.ErrorContains(t, err, "not found")

	yml := GenerateDefault("studio")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reelboard.yml"), []byte(yml), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "studio", cfg.Workspace.Name)

	require.NoError(t, os.WriteFile(Path(dir), []byte("gantt: [oops"), 0o644))
	_, err = LoadOptional(dir)
	assert.ErrorContains(t, err, "invalid config yaml")
}
