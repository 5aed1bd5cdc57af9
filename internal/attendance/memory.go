package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

type entryKey struct {
	studentID string
	day       string
}

// MemoryRepository keeps entries in a map guarded by one mutex, which makes
// InsertIfAbsent and SetCheckOut atomic.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[entryKey]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[entryKey]Entry)}
}

func keyOf(studentID string, day time.Time) entryKey {
	return entryKey{studentID: studentID, day: FormatDay(day)}
}

func (m *MemoryRepository) InsertIfAbsent(_ context.Context, e Entry) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(e.StudentID, e.Day)
	if existing, ok := m.entries[k]; ok {
		return existing.clone(), false, nil
	}
	e = e.clone()
	m.entries[k] = e
	return e.clone(), true, nil
}

func (m *MemoryRepository) Get(_ context.Context, studentID string, day time.Time) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[keyOf(studentID, day)]
	if !ok {
		return Entry{}, entryNotFound(studentID, day)
	}
	return e.clone(), nil
}

func (m *MemoryRepository) SetCheckOut(_ context.Context, studentID string, day, at time.Time) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(studentID, day)
	e, ok := m.entries[k]
	if !ok {
		return Entry{}, false, entryNotFound(studentID, day)
	}
	if e.CheckOutAt != nil {
		return e.clone(), false, nil
	}
	e.CheckOutAt = &at
	m.entries[k] = e
	return e.clone(), true, nil
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]Entry, error) {
	f = f.normalized()
	m.mu.Lock()
	var res []Entry
	for _, e := range m.entries {
		if f.matches(e) {
			res = append(res, e.clone())
		}
	}
	m.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if !res[i].Day.Equal(res[j].Day) {
			return res[i].Day.After(res[j].Day)
		}
		return res[i].CheckInAt.After(res[j].CheckInAt)
	})
	if f.Offset >= len(res) {
		return nil, nil
	}
	res = res[f.Offset:]
	if len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (m *MemoryRepository) Summary(_ context.Context, f Filter) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum Summary
	days := map[string]*DayCount{}
	locations := map[string]*LocationCount{}
	for _, e := range m.entries {
		if !f.matches(e) {
			continue
		}
		k := FormatDay(e.Day)
		d, ok := days[k]
		if !ok {
			d = &DayCount{Day: e.Day}
			days[k] = d
		}
		l, ok := locations[e.LocationID]
		if !ok {
			l = &LocationCount{LocationID: e.LocationID}
			locations[e.LocationID] = l
		}
		sum.Present++
		d.Present++
		l.Present++
		if e.CheckOutAt != nil {
			sum.CheckedOut++
			d.CheckedOut++
		}
	}

	for _, d := range days {
		sum.ByDay = append(sum.ByDay, *d)
	}
	sort.Slice(sum.ByDay, func(i, j int) bool { return sum.ByDay[i].Day.After(sum.ByDay[j].Day) })
	for _, l := range locations {
		sum.ByLocation = append(sum.ByLocation, *l)
	}
	sort.Slice(sum.ByLocation, func(i, j int) bool { return sum.ByLocation[i].LocationID < sum.ByLocation[j].LocationID })
	return sum, nil
}

// clone detaches the check-out pointer from the stored entry.
func (e Entry) clone() Entry {
	if e.CheckOutAt != nil {
		t := *e.CheckOutAt
		e.CheckOutAt = &t
	}
	return e
}
