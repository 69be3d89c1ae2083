package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage.
type Repository interface {
	// Reserve counts the non-cancelled appointments on appt.ScheduledDate and
	// inserts appt only while that count is below limit. A limit of 0 means
	// unlimited. Count and insert are atomic per date.
	Reserve(ctx context.Context, appt *Appointment, limit int) (*Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	GetByTicket(ctx context.Context, ticket int64) (*Appointment, error)
	FindByIdentity(ctx context.Context, filter IdentityFilter) ([]*Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error)
	SearchByPhone(ctx context.Context, phone string) ([]*Appointment, error)
	CountActive(ctx context.Context, date string) (int, error)
	FindPending(ctx context.Context, nationalID, fromDate string) ([]*Appointment, error)
	// Update replaces the record when its stored version equals expectedVersion.
	Update(ctx context.Context, appt *Appointment, expectedVersion int) (*Appointment, error)
	Delete(ctx context.Context, id string) error
}

// IdentityFilter narrows a national ID lookup. Records without a national ID
// match when the last four digits of their ticket equal the last four of NationalID.
type IdentityFilter struct {
	NationalID string
	Phone      string
	Date       string
}

func (f IdentityFilter) last4() (int64, bool) {
	if len(f.NationalID) < 4 {
		return 0, false
	}
	var n int64
	for _, r := range f.NationalID[len(f.NationalID)-4:] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int64(r-'0')
	}
	return n, true
}

func (f IdentityFilter) matches(a *Appointment) bool {
	switch {
	case a.NationalID != "":
		if a.NationalID != f.NationalID {
			return false
		}
	default:
		last4, ok := f.last4()
		if !ok || a.TicketLast4() != last4 {
			return false
		}
	}
	if f.Phone != "" && !strings.Contains(a.Phone, f.Phone) {
		return false
	}
	if f.Date != "" && a.ScheduledDate != f.Date {
		return false
	}
	return true
}

// Sortable list columns.
const (
	SortCreatedAt     = "created_at"
	SortScheduledDate = "scheduled_date"
	SortStatus        = "status"
	SortName          = "name"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListFilter drives the staff appointment list.
type ListFilter struct {
	Query     string
	Status    Status
	Date      string
	Page      int
	PageSize  int
	SortField string
	SortDesc  bool
	// Unpaged returns every matching row, used by exports.
	Unpaged bool
}

// ParseSort reads "field:DIR" against the whitelist. Unknown fields fall back to created_at desc.
func ParseSort(raw string) (string, bool) {
	field, dir, _ := strings.Cut(strings.TrimSpace(raw), ":")
	switch strings.ToLower(field) {
	case SortCreatedAt, SortScheduledDate, SortStatus, SortName:
		return strings.ToLower(field), !strings.EqualFold(dir, "asc")
	default:
		return SortCreatedAt, true
	}
}

// Normalized fills defaults and clamps paging.
func (f ListFilter) Normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	switch f.SortField {
	case SortCreatedAt, SortScheduledDate, SortStatus, SortName:
	default:
		f.SortField = SortCreatedAt
		f.SortDesc = true
	}
	f.Query = strings.TrimSpace(f.Query)
	return f
}

// Offset returns the row offset for the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

func (f ListFilter) matches(a *Appointment) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Date != "" && a.ScheduledDate != f.Date {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(a.Name), q) && !strings.Contains(a.Phone, q) {
			return false
		}
	}
	return true
}

// InMemoryRepository keeps appointments in process memory.
type InMemoryRepository struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
	seq          map[string]int
	next         int

	locksMu   sync.Mutex
	dateLocks map[string]*sync.Mutex
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		appointments: make(map[string]*Appointment),
		seq:          make(map[string]int),
		dateLocks:    make(map[string]*sync.Mutex),
	}
}

func (r *InMemoryRepository) dateLock(date string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.dateLocks[date]
	if !ok {
		l = &sync.Mutex{}
		r.dateLocks[date] = l
	}
	return l
}

// Reserve inserts appt when the date still has room.
func (r *InMemoryRepository) Reserve(ctx context.Context, appt *Appointment, limit int) (*Appointment, error) {
	if appt == nil || appt.ScheduledDate == "" {
		return nil, ErrInvalidRequest
	}
	l := r.dateLock(appt.ScheduledDate)
	l.Lock()
	defer l.Unlock()

	booked, err := r.CountActive(ctx, appt.ScheduledDate)
	if err != nil {
		return nil, err
	}
	if limit > 0 && booked >= limit {
		return nil, &CapacityExceededError{Date: appt.ScheduledDate, Capacity: limit, Booked: booked}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.appointments {
		if existing.TicketNumber == appt.TicketNumber {
			return nil, ErrConflict
		}
	}
	stored := appt.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 1
	r.next++
	r.seq[stored.ID] = r.next
	r.appointments[stored.ID] = stored
	return stored.Clone(), nil
}

// Get retrieves an appointment by ID.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return appt.Clone(), nil
}

// GetByTicket retrieves an appointment by ticket number.
func (r *InMemoryRepository) GetByTicket(ctx context.Context, ticket int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, appt := range r.appointments {
		if appt.TicketNumber == ticket {
			return appt.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// FindByIdentity returns matches ordered by scheduled date then creation, newest first.
func (r *InMemoryRepository) FindByIdentity(ctx context.Context, filter IdentityFilter) ([]*Appointment, error) {
	out := r.collect(filter.matches)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScheduledDate != out[j].ScheduledDate {
			return out[i].ScheduledDate > out[j].ScheduledDate
		}
		return r.newer(out[i], out[j])
	})
	return out, nil
}

// List returns one page of matches and the total match count.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	filter = filter.Normalized()
	out := r.collect(filter.matches)
	sort.SliceStable(out, func(i, j int) bool {
		less, equal := compareBy(filter.SortField, out[i], out[j])
		if equal {
			return r.newer(out[i], out[j])
		}
		if filter.SortDesc {
			return !less
		}
		return less
	})
	total := len(out)
	if filter.Unpaged {
		return out, total, nil
	}
	start := filter.Offset()
	if start >= total {
		return []*Appointment{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

// SearchByPhone returns appointments whose phone contains the given digits, newest first.
func (r *InMemoryRepository) SearchByPhone(ctx context.Context, phone string) ([]*Appointment, error) {
	out := r.collect(func(a *Appointment) bool { return strings.Contains(a.Phone, phone) })
	sort.SliceStable(out, func(i, j int) bool { return r.newer(out[i], out[j]) })
	return out, nil
}

// CountActive counts non-cancelled appointments on date.
func (r *InMemoryRepository) CountActive(ctx context.Context, date string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, appt := range r.appointments {
		if appt.ScheduledDate == date && appt.IsActive() {
			n++
		}
	}
	return n, nil
}

// FindPending returns pending appointments for nationalID scheduled on or after fromDate.
func (r *InMemoryRepository) FindPending(ctx context.Context, nationalID, fromDate string) ([]*Appointment, error) {
	out := r.collect(func(a *Appointment) bool {
		return a.NationalID == nationalID && a.Status == StatusPending && a.ScheduledDate >= fromDate
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledDate < out[j].ScheduledDate })
	return out, nil
}

// Update swaps in appt when the stored version still equals expectedVersion.
func (r *InMemoryRepository) Update(ctx context.Context, appt *Appointment, expectedVersion int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.appointments[appt.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ErrConflict
	}
	stored := appt.Clone()
	stored.TicketNumber = current.TicketNumber
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	stored.Version = expectedVersion + 1
	r.appointments[stored.ID] = stored
	return stored.Clone(), nil
}

// Delete removes the appointment permanently.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[id]; !ok {
		return ErrNotFound
	}
	delete(r.appointments, id)
	delete(r.seq, id)
	return nil
}

func (r *InMemoryRepository) collect(keep func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0)
	for _, appt := range r.appointments {
		if keep(appt) {
			out = append(out, appt.Clone())
		}
	}
	return out
}

// newer orders by creation time, falling back to insertion order for equal timestamps.
func (r *InMemoryRepository) newer(a, b *Appointment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq[a.ID] > r.seq[b.ID]
}

func compareBy(field string, a, b *Appointment) (less bool, equal bool) {
	var x, y string
	switch field {
	case SortScheduledDate:
		x, y = a.ScheduledDate, b.ScheduledDate
	case SortStatus:
		x, y = string(a.Status), string(b.Status)
	case SortName:
		x, y = strings.ToLower(a.Name), strings.ToLower(b.Name)
	default:
		if a.CreatedAt.Equal(b.CreatedAt) {
			return false, true
		}
		return a.CreatedAt.Before(b.CreatedAt), false
	}
	if x == y {
		return false, true
	}
	return x < y, false
}
