package gantt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelboard/internal/domain"
	"reelboard/internal/gantt"
)

func day(d int) time.Time {
	return time.Date(2025, 4, d, 10, 0, 0, 0, time.UTC)
}

func TestRecordCoalescesSameStatus(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	tl.Record(1, domain.StatusPlanning, "a", day(1))
	tl.Record(1, domain.StatusPlanning, "b", day(2))
	history := tl.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, "b", history[0].ChangedBy)
	assert.Equal(t, "2025-04-02T10:00:00Z", history[0].ChangedAt)
}

func TestRecordCapsHistory(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	statuses := []string{domain.StatusPlanning, domain.StatusInProgress}
	for i := 0; i < 150; i++ {
		tl.Record(1, statuses[i%2], "a", day(1).Add(time.Duration(i)*time.Hour))
	}
	history := tl.History(1)
	require.Len(t, history, 100)
	assert.Equal(t, day(1).Add(149*time.Hour).Format(time.RFC3339), history[99].ChangedAt)
	assert.Equal(t, day(1).Add(50*time.Hour).Format(time.RFC3339), history[0].ChangedAt)
}

func TestBuildThreeContiguousSegments(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	tl.Record(1, domain.StatusPlanning, "a", day(1))
	tl.Record(1, domain.StatusInProgress, "a", day(5))
	tl.Record(1, domain.StatusReview, "a", day(12))

	today := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	out := tl.Build(domain.Project{ID: 1, DueDate: "2025-04-20"}, today)
	require.Len(t, out.Segments, 3)
	assert.Equal(t, "2025-04-01", out.Start)
	assert.Equal(t, "2025-04-20", out.End)

	assert.Equal(t, domain.TimelineSegment{Status: domain.StatusPlanning, Start: "2025-04-01", End: "2025-04-04", Days: 4, ChangedAt: "2025-04-01T10:00:00Z", ChangedBy: "a"}, out.Segments[0])
	assert.Equal(t, "2025-04-05", out.Segments[1].Start)
	assert.Equal(t, "2025-04-11", out.Segments[1].End)
	assert.Equal(t, "2025-04-12", out.Segments[2].Start)
	assert.Equal(t, "2025-04-20", out.Segments[2].End)

	for i := 1; i < len(out.Segments); i++ {
		prev, _ := time.Parse(gantt.DateLayout, out.Segments[i-1].End)
		start, _ := time.Parse(gantt.DateLayout, out.Segments[i].Start)
		assert.Equal(t, prev.AddDate(0, 0, 1), start)
	}

	require.Len(t, out.Days, 20)
	assert.True(t, out.Days[0].IsChange)
	assert.False(t, out.Days[1].IsChange)
	assert.True(t, out.Days[4].IsChange)
	assert.Equal(t, domain.StatusInProgress, out.Days[4].Status)
}

func TestBuildUsesTodayWhenLater(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	tl.Record(1, domain.StatusPlanning, "a", day(1))
	out := tl.Build(domain.Project{ID: 1, DueDate: "2025-04-03"}, time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-04-09", out.End)
	assert.Equal(t, 9, out.Segments[0].Days)
}

func TestBuildSameDayLastWins(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	tl.Record(1, domain.StatusPlanning, "a", day(1))
	tl.Record(1, domain.StatusInProgress, "a", day(3))
	tl.Record(1, domain.StatusReview, "a", day(3).Add(2*time.Hour))
	out := tl.Build(domain.Project{ID: 1}, time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC))
	require.Len(t, out.Segments, 2)
	assert.Equal(t, domain.StatusReview, out.Segments[1].Status)
	assert.Equal(t, "2025-04-03", out.Segments[1].Start)
}

func TestBuildClipsSpanToEnd(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	tl.Record(1, domain.StatusPlanning, "a", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	out := tl.Build(domain.Project{ID: 1}, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-10-04", out.Start)
	assert.Equal(t, "2025-04-01", out.End)
	assert.Len(t, out.Days, 180)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, 180, out.Segments[0].Days)
	assert.False(t, out.Days[0].IsChange)
}

func TestBuildOldProjectKeepsLatestStatus(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	tl.Record(1, domain.StatusPlanning, "a", time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	tl.Record(1, domain.StatusInProgress, "b", time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC))

	out := tl.Build(domain.Project{ID: 1}, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-06-05", out.Start)
	assert.Equal(t, "2025-12-01", out.End)
	require.Len(t, out.Segments, 2)
	assert.Equal(t, domain.StatusPlanning, out.Segments[0].Status)
	assert.Equal(t, "2025-06-05", out.Segments[0].Start)
	assert.Equal(t, "2025-11-19", out.Segments[0].End)
	last := out.Segments[1]
	assert.Equal(t, domain.StatusInProgress, last.Status)
	assert.Equal(t, "2025-11-20", last.Start)
	assert.Equal(t, "2025-12-01", last.End)
	assert.Equal(t, 12, last.Days)
	assert.Len(t, out.Days, 180)
	assert.Equal(t, domain.StatusInProgress, out.Days[len(out.Days)-1].Status)
}

func TestSeedFallbacks(t *testing.T) {
	now := day(20)
	cases := []struct {
		name    string
		project domain.Project
		want    string
	}{
		{"created at", domain.Project{CreatedAt: "2025-04-02T08:00:00Z", DeliveryDate: "2025-04-25", DueDate: "2025-04-30"}, "2025-04-02T08:00:00Z"},
		{"delivery date", domain.Project{DeliveryDate: "2025-04-25", DueDate: "2025-04-30"}, "2025-04-25T00:00:00Z"},
		{"due date", domain.Project{DueDate: "2025-04-30"}, "2025-04-30T00:00:00Z"},
		{"unparseable dates", domain.Project{CreatedAt: "soon", DueDate: "2025/04/30"}, now.Format(time.RFC3339)},
		{"now", domain.Project{}, now.Format(time.RFC3339)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tl := gantt.NewTimelines(100, 180, time.UTC)
			tc.project.ID = 1
			tc.project.Status = domain.StatusDone
			require.True(t, tl.Seed(tc.project, now))
			history := tl.History(1)
			require.Len(t, history, 1)
			assert.Equal(t, tc.want, history[0].ChangedAt)
			assert.Equal(t, domain.StatusDone, history[0].Status)
		})
	}
}

func TestSeedOnlyOnce(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	require.True(t, tl.Seed(domain.Project{ID: 1, Status: domain.StatusPlanning, CreatedAt: "2025-04-02T08:00:00Z"}, day(20)))
	require.False(t, tl.Seed(domain.Project{ID: 1, Status: domain.StatusReview}, day(20)))
	history := tl.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusPlanning, history[0].Status)
}

func TestPreviewLeavesHistoryAlone(t *testing.T) {
	tl := gantt.NewTimelines(100, 180, time.UTC)
	p := domain.Project{ID: 1, Status: domain.StatusReview, CreatedAt: "2025-04-02T08:00:00Z"}
	out := tl.Preview(p, day(20), day(20))
	require.Len(t, out.Segments, 1)
	assert.Equal(t, domain.StatusReview, out.Segments[0].Status)
	assert.Equal(t, "2025-04-02", out.Start)
	assert.Empty(t, tl.History(1))

	tl.Record(1, domain.StatusPlanning, "a", day(1))
	out = tl.Preview(p, day(20), day(20))
	require.Len(t, out.Segments, 1)
	assert.Equal(t, domain.StatusPlanning, out.Segments[0].Status)
}
