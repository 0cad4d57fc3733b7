package gantt

import (
	"sort"
	"strings"
	"time"

	"reelboard/internal/domain"
)

const (
	defaultTaskType     = "GENERAL"
	defaultTaskPriority = "中"
	systemActor         = "system"
)

// TaskLists exposes the per-project and general task lists.
type TaskLists interface {
	TasksByProject(projectID int64) []domain.Task
	GeneralTasks() []domain.Task
}

// Owner identifies the list holding a task. ProjectID 0 is the general list.
type Owner struct {
	ProjectID int64 `json:"project_id"`
}

func (o Owner) General() bool { return o.ProjectID == 0 }

// ProjectRef carries the project attributes copied onto its tasks.
// A zero ID targets the general list.
type ProjectRef struct {
	ID          int64
	Name        string
	CompanyName string
	Color       string
}

// Store keeps every gantt task in exactly one list: its project's or the general one.
// Reads hand out deep copies. Writers must be serialized by the caller.
type Store struct {
	projects map[int64][]*domain.Task
	general  []*domain.Task
	ids      *IDGen
	all      []domain.Task
	now      func() time.Time
	loc      *time.Location
}

func NewStore(now func() time.Time, loc *time.Location) *Store {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		projects: make(map[int64][]*domain.Task),
		ids:      NewIDGen(ManualIDBase),
		now:      now,
		loc:      loc,
	}
}

type CreateTaskOptions struct {
	Title        string
	Project      *ProjectRef
	Type         string
	Status       string
	Assignee     string
	Priority     string
	Progress     *int
	DueDate      string
	PlanStart    string
	PlanEnd      string
	ActualStart  string
	ActualEnd    string
	OrderIndex   *int
	Dependencies []domain.Dependency
	Notes        string
	Actor        string
}

// Create adds a manual task to its project's list, or the general list.
func (s *Store) Create(opts CreateTaskOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalid("title", "is required")
	}
	progress := 0
	if opts.Progress != nil {
		if err := checkProgress(*opts.Progress); err != nil {
			return domain.Task{}, err
		}
		progress = *opts.Progress
	}
	dates := []struct{ field, value string }{
		{"due_date", opts.DueDate},
		{"plan_start", opts.PlanStart},
		{"plan_end", opts.PlanEnd},
		{"actual_start", opts.ActualStart},
		{"actual_end", opts.ActualEnd},
	}
	for _, d := range dates {
		if err := checkDate(d.field, d.value); err != nil {
			return domain.Task{}, err
		}
	}

	planStart, planEnd := opts.PlanStart, opts.PlanEnd
	if due, ok := parseDate(opts.DueDate, s.loc); ok {
		if planStart == "" {
			planStart = formatDate(addDays(due, -3))
		}
		if planEnd == "" {
			planEnd = formatDate(due)
		}
	}
	if planEnd == "" {
		planEnd = planStart
	}
	if planStart == "" {
		planStart = planEnd
	}

	owner := Owner{}
	if opts.Project != nil {
		owner.ProjectID = opts.Project.ID
	}
	id := s.nextID()
	order := 0
	if opts.OrderIndex != nil {
		order = *opts.OrderIndex
	} else {
		order = maxOrder(s.list(owner)) + 1
	}
	actor := actorOrSystem(opts.Actor)
	now := timestamp(s.now())
	t := &domain.Task{
		ID:           id,
		Title:        title,
		Type:         firstNonEmpty(opts.Type, defaultTaskType),
		Status:       firstNonEmpty(opts.Status, domain.TaskStatusPending),
		Assignee:     strings.TrimSpace(opts.Assignee),
		Priority:     firstNonEmpty(opts.Priority, defaultTaskPriority),
		Progress:     progress,
		DueDate:      opts.DueDate,
		PlanStart:    planStart,
		PlanEnd:      planEnd,
		ActualStart:  opts.ActualStart,
		ActualEnd:    opts.ActualEnd,
		OrderIndex:   order,
		Dependencies: normalizeDependencies(id, opts.Dependencies),
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedBy:    actor,
		UpdatedAt:    now,
		Notes:        opts.Notes,
		History:      []domain.TaskHistoryEntry{},
		TaskOrigin:   domain.OriginManual,
	}
	if opts.Project != nil && opts.Project.ID != 0 {
		applyProjectRef(t, *opts.Project)
	}
	s.setList(owner, append(s.list(owner), t))
	s.rebuild()
	return t.Clone(), nil
}

// Find locates a task and the list that owns it.
func (s *Store) Find(id int64) (domain.Task, Owner, error) {
	t, owner := s.lookup(id)
	if t == nil {
		return domain.Task{}, Owner{}, ErrNotFound
	}
	return t.Clone(), owner, nil
}

// Update applies a patch, recording one history entry per field that changed.
// Any edit to a generated stage task marks it user-modified.
func (s *Store) Update(id int64, patch TaskPatch, actor string) (domain.Task, error) {
	t, owner := s.lookup(id)
	if t == nil {
		return domain.Task{}, ErrNotFound
	}
	if err := s.validatePatch(t, owner, patch); err != nil {
		return domain.Task{}, err
	}
	actor = actorOrSystem(actor)
	ts := timestamp(s.now())
	changed := false
	note := func(field string, old, new any) {
		t.History = append([]domain.TaskHistoryEntry{{
			Field:     field,
			Old:       old,
			New:       new,
			Actor:     actor,
			Timestamp: ts,
		}}, t.History...)
		changed = true
	}
	str := func(field string, v *string, dst *string) {
		if v == nil || *v == *dst {
			return
		}
		note(field, *dst, *v)
		*dst = *v
	}
	num := func(field string, v *int, dst *int) {
		if v == nil || *v == *dst {
			return
		}
		note(field, *dst, *v)
		*dst = *v
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		str("title", &title, &t.Title)
	}
	str("type", patch.Type, &t.Type)
	str("status", patch.Status, &t.Status)
	str("assignee", patch.Assignee, &t.Assignee)
	str("due_date", patch.DueDate, &t.DueDate)
	str("priority", patch.Priority, &t.Priority)
	num("progress", patch.Progress, &t.Progress)
	str("plan_start", patch.PlanStart, &t.PlanStart)
	str("plan_end", patch.PlanEnd, &t.PlanEnd)
	str("actual_start", patch.ActualStart, &t.ActualStart)
	str("actual_end", patch.ActualEnd, &t.ActualEnd)
	num("order_index", patch.OrderIndex, &t.OrderIndex)
	str("notes", patch.Notes, &t.Notes)
	if patch.Dependencies != nil {
		deps := normalizeDependencies(t.ID, *patch.Dependencies)
		if !sameDependencies(deps, t.Dependencies) {
			note("dependencies", DependencyLabel(t.Dependencies), DependencyLabel(deps))
			t.Dependencies = deps
		}
	}
	if ref := patch.Project; ref != nil && ref.ID != owner.ProjectID {
		note("project_id", projectIDValue(owner.ProjectID), projectIDValue(ref.ID))
		oldName := t.ProjectName
		s.remove(owner, t.ID)
		if ref.ID == 0 {
			t.ProjectID, t.ProjectName, t.CompanyName = nil, "", ""
		} else {
			applyProjectRef(t, *ref)
		}
		if oldName != t.ProjectName {
			note("project_name", oldName, t.ProjectName)
		}
		dst := Owner{ProjectID: ref.ID}
		s.setList(dst, append(s.list(dst), t))
		owner = dst
	}

	if !patch.Empty() && t.IsAuto() {
		t.UserModified = true
	}
	if changed {
		t.UpdatedBy = actor
		t.UpdatedAt = ts
	}
	sortTasks(s.list(owner))
	s.rebuild()
	return t.Clone(), nil
}

func (s *Store) validatePatch(t *domain.Task, owner Owner, patch TaskPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return invalid("title", "must not be empty")
	}
	if patch.Progress != nil {
		if err := checkProgress(*patch.Progress); err != nil {
			return err
		}
	}
	dates := []struct {
		field string
		value *string
	}{
		{"due_date", patch.DueDate},
		{"plan_start", patch.PlanStart},
		{"plan_end", patch.PlanEnd},
		{"actual_start", patch.ActualStart},
		{"actual_end", patch.ActualEnd},
	}
	for _, d := range dates {
		if d.value == nil {
			continue
		}
		if err := checkDate(d.field, *d.value); err != nil {
			return err
		}
	}
	if ref := patch.Project; ref != nil && ref.ID != owner.ProjectID && t.IsAuto() {
		return invalid("project_id", "generated stage tasks cannot move to another project")
	}
	return nil
}

// Reorder assigns order_index = position+1 following ids. Unknown ids are returned.
func (s *Store) Reorder(ids []int64, actor string) ([]domain.Task, []int64) {
	actor = actorOrSystem(actor)
	ts := timestamp(s.now())
	var (
		updated []domain.Task
		missing []int64
	)
	touched := make(map[Owner]struct{})
	for pos, id := range ids {
		t, owner := s.lookup(id)
		if t == nil {
			missing = append(missing, id)
			continue
		}
		order := pos + 1
		if t.OrderIndex == order {
			continue
		}
		t.History = append([]domain.TaskHistoryEntry{{
			Field:     "order_index",
			Old:       t.OrderIndex,
			New:       order,
			Actor:     actor,
			Timestamp: ts,
		}}, t.History...)
		t.OrderIndex = order
		t.UpdatedBy = actor
		t.UpdatedAt = ts
		touched[owner] = struct{}{}
		updated = append(updated, t.Clone())
	}
	for owner := range touched {
		sortTasks(s.list(owner))
	}
	s.rebuild()
	return updated, missing
}

// Delete removes a manual task and every dependency edge pointing at it.
func (s *Store) Delete(id int64) error {
	t, owner := s.lookup(id)
	if t == nil {
		return ErrNotFound
	}
	if t.IsAuto() {
		return invalid("id", "generated stage tasks cannot be deleted")
	}
	s.remove(owner, id)
	s.prune(map[int64]struct{}{id: {}})
	s.rebuild()
	return nil
}

// DropProject removes a project's whole list and returns the ids that went with it.
func (s *Store) DropProject(projectID int64) []int64 {
	list := s.projects[projectID]
	if len(list) == 0 {
		delete(s.projects, projectID)
		return nil
	}
	gone := make(map[int64]struct{}, len(list))
	ids := make([]int64, 0, len(list))
	for _, t := range list {
		gone[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}
	delete(s.projects, projectID)
	s.prune(gone)
	s.rebuild()
	return ids
}

// TasksByProject returns the project's tasks in (order_index, id) order.
func (s *Store) TasksByProject(projectID int64) []domain.Task {
	return cloneAll(s.projects[projectID])
}

// GeneralTasks returns tasks not bound to any project.
func (s *Store) GeneralTasks() []domain.Task {
	return cloneAll(s.general)
}

// All returns every task from the read cache.
func (s *Store) All() []domain.Task {
	out := make([]domain.Task, len(s.all))
	for i, t := range s.all {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) Len() int {
	return len(s.all)
}

func (s *Store) nextID() int64 {
	for {
		id := s.ids.Next()
		if t, _ := s.lookup(id); t == nil {
			return id
		}
	}
}

func (s *Store) lookup(id int64) (*domain.Task, Owner) {
	for pid, list := range s.projects {
		for _, t := range list {
			if t.ID == id {
				return t, Owner{ProjectID: pid}
			}
		}
	}
	for _, t := range s.general {
		if t.ID == id {
			return t, Owner{}
		}
	}
	return nil, Owner{}
}

func (s *Store) list(o Owner) []*domain.Task {
	if o.General() {
		return s.general
	}
	return s.projects[o.ProjectID]
}

func (s *Store) setList(o Owner, list []*domain.Task) {
	sortTasks(list)
	if o.General() {
		s.general = list
		return
	}
	s.projects[o.ProjectID] = list
}

func (s *Store) remove(o Owner, id int64) {
	list := s.list(o)
	kept := list[:0]
	for _, t := range list {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	s.setList(o, kept)
}

func (s *Store) prune(gone map[int64]struct{}) {
	s.each(func(t *domain.Task) {
		kept := t.Dependencies[:0]
		for _, d := range t.Dependencies {
			if _, ok := gone[d.TaskID]; !ok {
				kept = append(kept, d)
			}
		}
		t.Dependencies = kept
	})
}

func (s *Store) each(fn func(*domain.Task)) {
	for _, list := range s.projects {
		for _, t := range list {
			fn(t)
		}
	}
	for _, t := range s.general {
		fn(t)
	}
}

// rebuild refreshes the flat read cache. Every mutation ends with it.
func (s *Store) rebuild() {
	all := make([]domain.Task, 0, len(s.all)+1)
	s.each(func(t *domain.Task) {
		all = append(all, t.Clone())
	})
	sort.SliceStable(all, func(i, j int) bool { return lessTask(all[i], all[j]) })
	s.all = all
}

// StoreState is the serializable form of a Store.
type StoreState struct {
	Projects map[int64][]domain.Task `json:"projects"`
	General  []domain.Task           `json:"general"`
	LastID   int64                   `json:"last_id"`
}

func (s *Store) State() StoreState {
	st := StoreState{
		Projects: make(map[int64][]domain.Task, len(s.projects)),
		General:  cloneAll(s.general),
		LastID:   s.ids.Last(),
	}
	for pid, list := range s.projects {
		st.Projects[pid] = cloneAll(list)
	}
	return st
}

// Load replaces the store contents with st.
func (s *Store) Load(st StoreState) {
	s.projects = make(map[int64][]*domain.Task, len(st.Projects))
	for pid, list := range st.Projects {
		s.projects[pid] = toPointers(list)
		sortTasks(s.projects[pid])
	}
	s.general = toPointers(st.General)
	sortTasks(s.general)
	s.ids = NewIDGen(ManualIDBase)
	s.ids.Observe(st.LastID)
	s.rebuild()
}

func toPointers(list []domain.Task) []*domain.Task {
	out := make([]*domain.Task, 0, len(list))
	for _, t := range list {
		c := t.Clone()
		out = append(out, &c)
	}
	return out
}

func cloneAll(list []*domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(list))
	for _, t := range list {
		out = append(out, t.Clone())
	}
	return out
}

func lessTask(a, b domain.Task) bool {
	if a.OrderIndex != b.OrderIndex {
		return a.OrderIndex < b.OrderIndex
	}
	return a.ID < b.ID
}

func sortTasks(list []*domain.Task) {
	sort.SliceStable(list, func(i, j int) bool { return lessTask(*list[i], *list[j]) })
}

func maxOrder(list []*domain.Task) int {
	m := 0
	for _, t := range list {
		if t.OrderIndex > m {
			m = t.OrderIndex
		}
	}
	return m
}

func applyProjectRef(t *domain.Task, ref ProjectRef) {
	id := ref.ID
	t.ProjectID = &id
	t.ProjectName = ref.Name
	t.CompanyName = ref.CompanyName
	if ref.Color != "" {
		t.Color = ref.Color
	}
}

func projectIDValue(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func checkProgress(v int) error {
	if v < 0 || v > 100 {
		return invalid("progress", "must be within 0..100, got %d", v)
	}
	return nil
}

func checkDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return invalid(field, "must be YYYY-MM-DD, got %q", value)
	}
	return nil
}

func actorOrSystem(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return systemActor
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
