package reminders

import (
	"context"
	"sort"
	"time"
)

type memoryRepo struct {
	items  map[int64]*Reminder
	nextID int64
	failOn map[int64]error
	// touch mutates a stored reminder just before it is locked.
	touch func(*Reminder)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]*Reminder), failOn: make(map[int64]error)}
}

func (m *memoryRepo) seed(r Reminder) int64 {
	id, _ := m.Create(context.Background(), r)
	return id
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (*Reminder, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter, now time.Time) ([]Reminder, int, error) {
	var out []Reminder
	for _, r := range m.sorted() {
		if filter.Matches(r, now) {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	var out []Reminder
	for _, r := range m.sorted() {
		if r.CompletedAt == nil && r.NotifiedAt == nil && !r.DueAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) Create(ctx context.Context, r Reminder) (int64, error) {
	if r.Source != nil {
		for _, existing := range m.items {
			if existing.Source != nil && existing.Source.RecurringTaskID == r.Source.RecurringTaskID &&
				existing.Source.Occurrence.Equal(r.Source.Occurrence) && existing.Source.Notice == r.Source.Notice {
				return 0, ErrDuplicateOccurrence
			}
		}
	}
	m.nextID++
	r.ID = m.nextID
	m.items[r.ID] = &r
	return r.ID, nil
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Reminder, len(m.items))
	for id, r := range m.items {
		snapshot[id] = *r
	}
	nextID := m.nextID
	if err := fn(ctx, memoryTx{m}); err != nil {
		m.items = make(map[int64]*Reminder, len(snapshot))
		for id, r := range snapshot {
			r := r
			m.items[id] = &r
		}
		m.nextID = nextID
		return err
	}
	return nil
}

func (m *memoryRepo) sorted() []Reminder {
	out := make([]Reminder, 0, len(m.items))
	for _, r := range m.items {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryTx struct {
	m *memoryRepo
}

func (t memoryTx) GetForUpdate(ctx context.Context, id int64) (*Reminder, error) {
	if err := t.m.failOn[id]; err != nil {
		return nil, err
	}
	if r, ok := t.m.items[id]; ok && t.m.touch != nil {
		t.m.touch(r)
	}
	return t.m.Get(ctx, id)
}

func (t memoryTx) Insert(ctx context.Context, r Reminder) (int64, error) {
	return t.m.Create(ctx, r)
}

func (t memoryTx) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	r, ok := t.m.items[id]
	if !ok {
		return ErrNotFound
	}
	r.NotifiedAt = &at
	return nil
}

func (t memoryTx) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	r, ok := t.m.items[id]
	if !ok {
		return ErrNotFound
	}
	r.CompletedAt = &at
	return nil
}

func (t memoryTx) Reschedule(ctx context.Context, id int64, dueAt, at time.Time) error {
	r, ok := t.m.items[id]
	if !ok {
		return ErrNotFound
	}
	r.DueAt = dueAt
	r.NotifiedAt = nil
	r.UpdatedAt = at
	return nil
}

type recordingNotifier struct {
	sent []int64
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, r Reminder) error {
	n.sent = append(n.sent, r.ID)
	return n.err
}

type staticLinks map[Link]string

func (s staticLinks) Resolve(ctx context.Context, link Link) (string, error) {
	label, ok := s[link]
	if !ok {
		return "", ErrLinkNotFound
	}
	return label, nil
}
