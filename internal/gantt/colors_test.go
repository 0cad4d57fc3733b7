package gantt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reelboard/internal/domain"
	"reelboard/internal/gantt"
)

func TestColorsFirstUnusedThenCycle(t *testing.T) {
	c := gantt.NewColors([]string{"#000001", "#000002"})
	p1 := &domain.Project{ID: 1}
	p2 := &domain.Project{ID: 2}
	p3 := &domain.Project{ID: 3}
	assert.Equal(t, "#000001", c.Ensure(10, p1))
	assert.Equal(t, "#000002", c.Ensure(10, p2))
	assert.Equal(t, "#000001", c.Ensure(10, p3))
	assert.Equal(t, "#000001", p3.Color)

	other := &domain.Project{ID: 4}
	assert.Equal(t, "#000001", c.Ensure(20, other), "palettes are per company")
}

func TestColorsKeepExisting(t *testing.T) {
	c := gantt.NewColors([]string{"#000001", "#000002"})
	existing := &domain.Project{ID: 1, Color: "#000001"}
	assert.Equal(t, "#000001", c.Ensure(10, existing))
	fresh := &domain.Project{ID: 2}
	assert.Equal(t, "#000002", c.Ensure(10, fresh))
	assert.Equal(t, "#000002", c.Ensure(10, fresh), "idempotent")
}
