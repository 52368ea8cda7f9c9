package recurring

import (
	"context"
	"sort"
	"time"

	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
)

type occurrenceKey struct {
	task   int64
	date   time.Time
	notice reminders.Notice
}

type memoryRepo struct {
	tasks     map[int64]*Task
	logs      []Log
	reminders []reminders.Reminder
	keys      map[occurrenceKey]bool
	nextID    int64
	failOn    map[int64]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		tasks:  make(map[int64]*Task),
		keys:   make(map[occurrenceKey]bool),
		failOn: make(map[int64]error),
	}
}

func (m *memoryRepo) seed(t Task) int64 {
	id, _ := m.Create(context.Background(), t)
	return id
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (*Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	var out []Task
	for _, t := range m.sorted() {
		if filter.Active != nil && t.Active != *filter.Active {
			continue
		}
		if filter.ClientID != nil && (t.ClientID == nil || *t.ClientID != *filter.ClientID) {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListDue(ctx context.Context, today time.Time) ([]Task, error) {
	var out []Task
	for _, t := range m.sorted() {
		if t.IsDue(today) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListActive(ctx context.Context) ([]Task, error) {
	var out []Task
	for _, t := range m.sorted() {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryRepo) Create(ctx context.Context, t Task) (int64, error) {
	m.nextID++
	t.ID = m.nextID
	m.tasks[t.ID] = &t
	return t.ID, nil
}

func (m *memoryRepo) Logs(ctx context.Context, taskID int64, limit int) ([]Log, error) {
	var out []Log
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].TaskID == taskID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tasks := make(map[int64]Task, len(m.tasks))
	for id, t := range m.tasks {
		tasks[id] = *t
	}
	logs := append([]Log(nil), m.logs...)
	rems := append([]reminders.Reminder(nil), m.reminders...)
	keys := make(map[occurrenceKey]bool, len(m.keys))
	for k, v := range m.keys {
		keys[k] = v
	}
	if err := fn(ctx, memoryTx{m}); err != nil {
		m.tasks = make(map[int64]*Task, len(tasks))
		for id, t := range tasks {
			t := t
			m.tasks[id] = &t
		}
		m.logs, m.reminders, m.keys = logs, rems, keys
		return err
	}
	return nil
}

func (m *memoryRepo) sorted() []Task {
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryRepo) remindersFor(taskID int64, notice reminders.Notice) []reminders.Reminder {
	var out []reminders.Reminder
	for _, r := range m.reminders {
		if r.Source != nil && r.Source.RecurringTaskID == taskID && r.Source.Notice == notice {
			out = append(out, r)
		}
	}
	return out
}

type memoryTx struct {
	m *memoryRepo
}

func (t memoryTx) GetForUpdate(ctx context.Context, id int64) (*Task, error) {
	if err := t.m.failOn[id]; err != nil {
		return nil, err
	}
	return t.m.Get(ctx, id)
}

func (t memoryTx) Update(ctx context.Context, task Task) error {
	if _, ok := t.m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	t.m.tasks[task.ID] = &task
	return nil
}

func (t memoryTx) AppendLog(ctx context.Context, l Log) error {
	l.ID = int64(len(t.m.logs) + 1)
	t.m.logs = append(t.m.logs, l)
	return nil
}

func (t memoryTx) CreateReminder(ctx context.Context, r reminders.Reminder) (int64, error) {
	if r.Source != nil {
		key := occurrenceKey{r.Source.RecurringTaskID, shared.DateOf(r.Source.Occurrence), r.Source.Notice}
		if t.m.keys[key] {
			return 0, reminders.ErrDuplicateOccurrence
		}
		t.m.keys[key] = true
	}
	r.ID = int64(len(t.m.reminders) + 1)
	t.m.reminders = append(t.m.reminders, r)
	return r.ID, nil
}
