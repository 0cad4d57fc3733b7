package gantt

import "reelboard/internal/domain"

// Colors hands out display colors per company from a fixed palette.
type Colors struct {
	palette  []string
	assigned map[int64]map[int64]string
}

func NewColors(palette []string) *Colors {
	return &Colors{
		palette:  append([]string{}, palette...),
		assigned: make(map[int64]map[int64]string),
	}
}

// Ensure gives p a color if it has none and returns it.
// The first palette color not yet used within the company wins; once the
// palette is exhausted colors cycle by the number already handed out.
func (c *Colors) Ensure(companyID int64, p *domain.Project) string {
	byProject := c.assigned[companyID]
	if byProject == nil {
		byProject = make(map[int64]string)
		c.assigned[companyID] = byProject
	}
	if p.Color != "" {
		byProject[p.ID] = p.Color
		return p.Color
	}
	if color, ok := byProject[p.ID]; ok {
		p.Color = color
		return color
	}
	if len(c.palette) == 0 {
		return ""
	}
	used := make(map[string]struct{}, len(byProject))
	for _, color := range byProject {
		used[color] = struct{}{}
	}
	color := ""
	for _, candidate := range c.palette {
		if _, taken := used[candidate]; !taken {
			color = candidate
			break
		}
	}
	if color == "" {
		color = c.palette[len(byProject)%len(c.palette)]
	}
	byProject[p.ID] = color
	p.Color = color
	return color
}

// Forget releases the color held by a deleted project.
func (c *Colors) Forget(companyID, projectID int64) {
	delete(c.assigned[companyID], projectID)
}
