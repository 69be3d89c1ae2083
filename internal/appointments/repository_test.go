package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAppt(ticket int64, nid, date string) *Appointment {
	return &Appointment{
		TicketNumber:  ticket,
		Name:          "Patient " + fmt.Sprint(ticket),
		Phone:         "01012345678",
		NationalID:    nid,
		ScheduledDate: date,
		Status:        StatusPending,
		Symptoms:      "checkup",
	}
}

func TestInMemoryReserve_RespectsLimit(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := repo.Reserve(ctx, newAppt(i, "29801011234567", "2025-06-02"), 3)
		require.NoError(t, err)
	}
	_, err := repo.Reserve(ctx, newAppt(4, "29801011234567", "2025-06-02"), 3)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	var capErr *CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 3, capErr.Booked)
	assert.Equal(t, "2025-06-02", capErr.Date)
}

func TestInMemoryReserve_UnlimitedWhenZero(t *testing.T) {
	repo := NewInMemoryRepository()
	for i := int64(1); i <= 50; i++ {
		_, err := repo.Reserve(context.Background(), newAppt(i, "", "2025-06-02"), 0)
		require.NoError(t, err)
	}
	n, err := repo.CountActive(context.Background(), "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestInMemoryReserve_CancelledDoNotCount(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		_, err := repo.Reserve(ctx, newAppt(i, "", "2025-06-02"), 5)
		require.NoError(t, err)
	}
	cancelled := newAppt(5, "", "2025-06-02")
	cancelled.Status = StatusCancelled
	_, err := repo.Reserve(ctx, cancelled, 5)
	require.NoError(t, err)

	_, err = repo.Reserve(ctx, newAppt(6, "", "2025-06-02"), 5)
	assert.NoError(t, err)
	_, err = repo.Reserve(ctx, newAppt(7, "", "2025-06-02"), 5)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestInMemoryReserve_ConcurrentLastSlot(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	for i := int64(1); i <= 9; i++ {
		_, err := repo.Reserve(ctx, newAppt(i, "", "2025-06-02"), 10)
		require.NoError(t, err)
	}

	var wins, rejects int32
	var wg sync.WaitGroup
	for i := int64(0); i < 20; i++ {
		wg.Add(1)
		go func(ticket int64) {
			defer wg.Done()
			_, err := repo.Reserve(ctx, newAppt(100+ticket, "", "2025-06-02"), 10)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ErrCapacityExceeded):
				atomic.AddInt32(&rejects, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(19), rejects)
}

func TestInMemoryReserve_DuplicateTicket(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.Reserve(context.Background(), newAppt(7, "", "2025-06-02"), 0)
	require.NoError(t, err)
	_, err = repo.Reserve(context.Background(), newAppt(7, "", "2025-06-03"), 0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestInMemoryFindByIdentity(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	nid := "29801011234567"
	for i, date := range []string{"2025-06-01", "2025-06-09", "2025-06-05"} {
		_, err := repo.Reserve(ctx, newAppt(int64(i+1), nid, date), 0)
		require.NoError(t, err)
	}
	// legacy row without national ID whose ticket ends with the same four digits
	_, err := repo.Reserve(ctx, newAppt(202501010014567, "", "2025-01-01"), 0)
	require.NoError(t, err)
	_, err = repo.Reserve(ctx, newAppt(99, "29901019999999", "2025-06-01"), 0)
	require.NoError(t, err)

	all, err := repo.FindByIdentity(ctx, IdentityFilter{NationalID: nid})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"2025-06-09", "2025-06-05", "2025-06-01", "2025-01-01"},
		[]string{all[0].ScheduledDate, all[1].ScheduledDate, all[2].ScheduledDate, all[3].ScheduledDate})

	narrowed, err := repo.FindByIdentity(ctx, IdentityFilter{NationalID: nid, Date: "2025-06-05"})
	require.NoError(t, err)
	require.Len(t, narrowed, 1)

	byPhone, err := repo.FindByIdentity(ctx, IdentityFilter{NationalID: nid, Phone: "0109"})
	require.NoError(t, err)
	assert.Empty(t, byPhone)
}

func TestInMemoryList_FiltersPagesAndSorts(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	names := []string{"Mona", "Ahmed", "Salma", "Omar", "Hana"}
	for i, name := range names {
		a := newAppt(int64(i+1), "", fmt.Sprintf("2025-06-0%d", i+1))
		a.Name = name
		if i%2 == 1 {
			a.Status = StatusCompleted
			a.CompletionHour = "10:00"
		}
		_, err := repo.Reserve(ctx, a, 0)
		require.NoError(t, err)
	}

	page, total, err := repo.List(ctx, ListFilter{SortField: SortName, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "Ahmed", page[0].Name)
	assert.Equal(t, "Hana", page[1].Name)

	page, total, err = repo.List(ctx, ListFilter{SortField: SortName, Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 1)
	assert.Equal(t, "Salma", page[0].Name)

	completed, total, err := repo.List(ctx, ListFilter{Status: StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, completed, 2)

	byQuery, _, err := repo.List(ctx, ListFilter{Query: "sal"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, "Salma", byQuery[0].Name)

	newestFirst, _, err := repo.List(ctx, ListFilter{SortField: SortScheduledDate, SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-05", newestFirst[0].ScheduledDate)
}

func TestInMemoryUpdate_CompareAndSwap(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	created, err := repo.Reserve(ctx, newAppt(1, "", "2025-06-02"), 0)
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)

	first := created.Clone()
	first.Name = "First"
	saved, err := repo.Update(ctx, first, created.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	second := created.Clone()
	second.Name = "Second"
	_, err = repo.Update(ctx, second, created.Version)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Name)
}

func TestInMemoryDelete(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	created, err := repo.Reserve(ctx, newAppt(1, "", "2025-06-02"), 0)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, created.ID), ErrNotFound)
}

func TestInMemoryFindPending(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	nid := "29801011234567"
	_, err := repo.Reserve(ctx, newAppt(1, nid, "2025-05-01"), 0)
	require.NoError(t, err)
	done := newAppt(2, nid, "2025-06-10")
	done.Status = StatusCompleted
	done.CompletionHour = "11:00"
	_, err = repo.Reserve(ctx, done, 0)
	require.NoError(t, err)

	pending, err := repo.FindPending(ctx, nid, "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = repo.Reserve(ctx, newAppt(3, nid, "2025-06-12"), 0)
	require.NoError(t, err)
	pending, err = repo.FindPending(ctx, nid, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].TicketNumber)
}
