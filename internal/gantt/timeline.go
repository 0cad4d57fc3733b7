package gantt

import (
	"sort"
	"time"

	"reelboard/internal/domain"
)

// Timelines keeps the status-change history of every project.
type Timelines struct {
	events  map[int64][]domain.StatusEvent
	cap     int
	maxSpan int
	loc     *time.Location
}

func NewTimelines(historyCap, maxSpanDays int, loc *time.Location) *Timelines {
	if loc == nil {
		loc = time.UTC
	}
	return &Timelines{
		events:  make(map[int64][]domain.StatusEvent),
		cap:     historyCap,
		maxSpan: maxSpanDays,
		loc:     loc,
	}
}

// Record appends a status change. A repeat of the latest status only
// refreshes that entry's timestamp and actor.
func (tl *Timelines) Record(projectID int64, status, actor string, at time.Time) domain.StatusEvent {
	evt := domain.StatusEvent{
		Status:    status,
		ChangedAt: timestamp(at),
		ChangedBy: actorOrSystem(actor),
	}
	list := tl.events[projectID]
	if n := len(list); n > 0 && list[n-1].Status == status {
		list[n-1] = evt
		return evt
	}
	list = append(list, evt)
	if tl.cap > 0 && len(list) > tl.cap {
		list = append([]domain.StatusEvent{}, list[len(list)-tl.cap:]...)
	}
	tl.events[projectID] = list
	return evt
}

// Seed records the current status once for projects that have no history yet.
// The timestamp is the best known moment the project entered that status.
func (tl *Timelines) Seed(p domain.Project, now time.Time) bool {
	if len(tl.events[p.ID]) > 0 {
		return false
	}
	tl.Record(p.ID, p.Status, systemActor, tl.seedTime(p, now))
	return true
}

func (tl *Timelines) seedTime(p domain.Project, now time.Time) time.Time {
	for _, candidate := range []string{p.CreatedAt, p.DeliveryDate, p.DueDate} {
		if t, ok := parseInstant(candidate, tl.loc); ok {
			return t
		}
	}
	return now
}

// Preview builds the timeline like Build, but a project without history gets
// its seed event in the result only.
func (tl *Timelines) Preview(p domain.Project, now, today time.Time) domain.Timeline {
	history := tl.History(p.ID)
	if len(history) == 0 {
		history = []domain.StatusEvent{{
			Status:    p.Status,
			ChangedAt: timestamp(tl.seedTime(p, now)),
			ChangedBy: systemActor,
		}}
	}
	return tl.build(p, history, today)
}

// History returns a copy of the project's events in recorded order.
func (tl *Timelines) History(projectID int64) []domain.StatusEvent {
	return append([]domain.StatusEvent{}, tl.events[projectID]...)
}

func (tl *Timelines) Drop(projectID int64) {
	delete(tl.events, projectID)
}

type datedEvent struct {
	date time.Time
	evt  domain.StatusEvent
}

// Build turns the project's events into contiguous segments and a per-day map.
func (tl *Timelines) Build(p domain.Project, today time.Time) domain.Timeline {
	return tl.build(p, tl.History(p.ID), today)
}

func (tl *Timelines) build(p domain.Project, history []domain.StatusEvent, today time.Time) domain.Timeline {
	out := domain.Timeline{
		ProjectID: p.ID,
		Segments:  []domain.TimelineSegment{},
		Days:      []domain.TimelineDay{},
		History:   history,
	}
	dated := make([]datedEvent, 0, len(history))
	for _, evt := range history {
		t, ok := parseInstant(evt.ChangedAt, tl.loc)
		if !ok {
			continue
		}
		dated = append(dated, datedEvent{date: civil(t, tl.loc), evt: evt})
	}
	if len(dated) == 0 {
		return out
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].date.Before(dated[j].date) })

	// One status per day: the last change of a day wins. Runs of the same
	// status that this exposes are merged into the earliest entry.
	points := make([]datedEvent, 0, len(dated))
	for _, d := range dated {
		if n := len(points); n > 0 && points[n-1].date.Equal(d.date) {
			points[n-1] = d
			if n > 1 && points[n-2].evt.Status == d.evt.Status {
				points = points[:n-1]
			}
			continue
		}
		if n := len(points); n > 0 && points[n-1].evt.Status == d.evt.Status {
			continue
		}
		points = append(points, d)
	}

	start := points[0].date
	end := maxDate(points[len(points)-1].date, today)
	for _, candidate := range []string{p.DeliveryDate, p.DueDate} {
		if t, ok := parseDate(candidate, tl.loc); ok {
			end = maxDate(end, t)
		}
	}
	// The window always reaches end; long histories lose their oldest days.
	if tl.maxSpan > 0 {
		start = maxDate(start, addDays(end, -(tl.maxSpan-1)))
	}

	first := 0
	for i, pt := range points {
		if pt.date.After(start) {
			break
		}
		first = i
	}
	for i := first; i < len(points); i++ {
		pt := points[i]
		segStart := maxDate(pt.date, start)
		segEnd := end
		if i+1 < len(points) {
			segEnd = addDays(points[i+1].date, -1)
		}
		out.Segments = append(out.Segments, domain.TimelineSegment{
			Status:    pt.evt.Status,
			Start:     formatDate(segStart),
			End:       formatDate(segEnd),
			Days:      daysBetween(segStart, segEnd) + 1,
			ChangedAt: pt.evt.ChangedAt,
			ChangedBy: pt.evt.ChangedBy,
		})
		for d := segStart; !d.After(segEnd); d = addDays(d, 1) {
			out.Days = append(out.Days, domain.TimelineDay{
				Date:     formatDate(d),
				Status:   pt.evt.Status,
				IsChange: d.Equal(pt.date),
			})
		}
	}
	out.Start = formatDate(start)
	out.End = formatDate(end)
	return out
}

// TimelineState is the serializable form of Timelines.
type TimelineState map[int64][]domain.StatusEvent

func (tl *Timelines) State() TimelineState {
	st := make(TimelineState, len(tl.events))
	for pid, list := range tl.events {
		st[pid] = append([]domain.StatusEvent{}, list...)
	}
	return st
}

func (tl *Timelines) Load(st TimelineState) {
	tl.events = make(map[int64][]domain.StatusEvent, len(st))
	for pid, list := range st {
		tl.events[pid] = append([]domain.StatusEvent{}, list...)
	}
}
