package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

// MemoryRepository is a process-local Repository for development and tests.
// It enforces the active-slot uniqueness rule under its mutex the same way the
// partial unique index does in Postgres.
type MemoryRepository struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]User
	appointments map[uuid.UUID]Appointment
	blocks       map[uuid.UUID]UnavailabilityBlock
	events       []EventLog
	nextEventID  int64
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[uuid.UUID]User),
		appointments: make(map[uuid.UUID]Appointment),
		blocks:       make(map[uuid.UUID]UnavailabilityBlock),
		now:          time.Now,
	}
}

// PutUser adds or replaces a directory entry.
func (m *MemoryRepository) PutUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now()
		u.UpdatedAt = u.CreatedAt
	}
	m.users[u.ID] = u
}

// Events returns a copy of every recorded event.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryRepository) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryRepository) BlocksFor(_ context.Context, psychologistID uuid.UUID, date schedule.Date) ([]UnavailabilityBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []UnavailabilityBlock
	for _, b := range m.blocks {
		if b.PsychologistID == psychologistID && b.Date == date {
			result = append(result, b)
		}
	}
	sortBlocks(result)
	return result, nil
}

func (m *MemoryRepository) ListBlocks(_ context.Context, psychologistID uuid.UUID, from, to schedule.Date) ([]UnavailabilityBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []UnavailabilityBlock
	for _, b := range m.blocks {
		if b.PsychologistID == psychologistID && !b.Date.Before(from) && !b.Date.After(to) {
			result = append(result, b)
		}
	}
	sortBlocks(result)
	return result, nil
}

func (m *MemoryRepository) GetBlock(_ context.Context, id uuid.UUID) (*UnavailabilityBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[id]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return &b, nil
}

func (m *MemoryRepository) CreateBlock(_ context.Context, b *UnavailabilityBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.New()
	b.CreatedAt = m.now()
	m.blocks[b.ID] = *b
	return nil
}

func (m *MemoryRepository) DeleteBlock(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[id]; !ok {
		return ErrBlockNotFound
	}
	delete(m.blocks, id)
	return nil
}

func (m *MemoryRepository) ActiveAppointmentsFor(_ context.Context, psychologistID uuid.UUID, date schedule.Date) ([]BookedSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []BookedSlot
	for _, a := range m.appointments {
		if a.PsychologistID == psychologistID && a.Date == date && a.Status.IsActive() {
			result = append(result, BookedSlot{Time: a.Time, AppointmentID: a.ID})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result, nil
}

func (m *MemoryRepository) ActiveAt(_ context.Context, psychologistID uuid.UUID, date schedule.Date, t schedule.TimeOfDay) (*BookedSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.activeAtLocked(psychologistID, date, t); ok {
		return &BookedSlot{Time: a.Time, AppointmentID: a.ID}, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *MemoryRepository) activeAtLocked(psychologistID uuid.UUID, date schedule.Date, t schedule.TimeOfDay) (Appointment, bool) {
	for _, a := range m.appointments {
		if a.PsychologistID == psychologistID && a.Date == date && a.Time == t && a.Status.IsActive() {
			return a, true
		}
	}
	return Appointment{}, false
}

func (m *MemoryRepository) CreatePendingAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.activeAtLocked(a.PsychologistID, a.Date, a.Time); taken {
		return ErrActiveSlotTaken
	}
	now := m.now()
	a.ID = uuid.New()
	a.Status = StatusPending
	a.CreatedAt = now
	a.UpdatedAt = now
	m.appointments[a.ID] = *a
	return nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Appointment
	for _, a := range m.appointments {
		switch {
		case f.StudentID != nil && a.StudentID != *f.StudentID:
			continue
		case f.PsychologistID != nil && a.PsychologistID != *f.PsychologistID:
			continue
		case f.Status != nil && a.Status != *f.Status:
			continue
		case f.From != nil && a.Date.Before(*f.From):
			continue
		case f.To != nil && a.Date.After(*f.To):
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		if result[i].Time != result[j].Time {
			return result[i].Time < result[j].Time
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if f.Offset >= len(result) {
		return nil, nil
	}
	result = result[f.Offset:]
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *MemoryRepository) HasAppointmentBetween(_ context.Context, studentID, psychologistID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.appointments {
		if a.StudentID == studentID && a.PsychologistID == psychologistID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, notes *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || !containsStatus(from, a.Status) {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if notes != nil {
		n := *notes
		a.Notes = &n
	}
	a.UpdatedAt = m.now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	ev.ID = m.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryRepository) FetchUnpublished(_ context.Context, limit int) ([]EventLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []EventLog
	for _, ev := range m.events {
		if ev.PublishedAt != nil {
			continue
		}
		result = append(result, ev)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryRepository) MarkPublished(_ context.Context, ids []int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for i := range m.events {
		if marked[m.events[i].ID] && m.events[i].PublishedAt == nil {
			t := at
			m.events[i].PublishedAt = &t
		}
	}
	return nil
}

func containsStatus(statuses []AppointmentStatus, s AppointmentStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func sortBlocks(blocks []UnavailabilityBlock) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Date != blocks[j].Date {
			return blocks[i].Date.Before(blocks[j].Date)
		}
		return blockStart(blocks[i]) < blockStart(blocks[j])
	})
}

func blockStart(b UnavailabilityBlock) schedule.TimeOfDay {
	if b.StartTime == nil {
		return -1
	}
	return *b.StartTime
}
