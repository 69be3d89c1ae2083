package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
)

// maxDailySequence is the largest per-day sequence that fits the three digit ticket slot.
const maxDailySequence = 999

// TicketAllocator hands out per-day ticket sequences. Sequences only grow,
// so a number is never handed out twice even after the appointment is deleted.
type TicketAllocator interface {
	Next(ctx context.Context, date string) (int, error)
}

// FormatTicket builds YYYYMMDD + three digit sequence + last four digits of the national ID.
func FormatTicket(date string, seq int, nationalID string) (int64, error) {
	day, err := time.Parse(appointments.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid date %q", appointments.ErrInvalidRequest, date)
	}
	if seq < 1 || seq > maxDailySequence {
		return 0, fmt.Errorf("%w: ticket sequence exhausted for %s", appointments.ErrCapacityExceeded, date)
	}
	digits := appointments.DigitsOnly(nationalID)
	if len(digits) < 4 {
		return 0, fmt.Errorf("%w: national id too short for ticket", appointments.ErrInvalidRequest)
	}
	raw := fmt.Sprintf("%s%03d%s", day.Format("20060102"), seq, digits[len(digits)-4:])
	return strconv.ParseInt(raw, 10, 64)
}

// ParseTicket accepts a ticket typed by a patient. Anything but digits is rejected.
func ParseTicket(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	return n, err == nil
}

// MemoryAllocator counts sequences in process memory.
type MemoryAllocator struct {
	mu   sync.Mutex
	last map[string]int
}

// NewMemoryAllocator creates an empty allocator.
func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{last: make(map[string]int)}
}

func (m *MemoryAllocator) Next(ctx context.Context, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[date]++
	return m.last[date], nil
}

// RedisAllocator uses INCR on a per-day key.
type RedisAllocator struct {
	redis *redis.Client
	// retain keeps a day's counter this long past the day itself.
	retain time.Duration
}

// NewRedisAllocator creates a Redis backed allocator.
func NewRedisAllocator(client *redis.Client) *RedisAllocator {
	if client == nil {
		panic("booking: redis client required")
	}
	return &RedisAllocator{redis: client, retain: 7 * 24 * time.Hour}
}

func (a *RedisAllocator) key(date string) string {
	return "ticket:seq:" + date
}

func (a *RedisAllocator) Next(ctx context.Context, date string) (int, error) {
	day, err := time.Parse(appointments.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid date %q", appointments.ErrInvalidRequest, date)
	}
	key := a.key(date)
	n, err := a.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("booking: incr ticket sequence: %w", err)
	}
	if n == 1 {
		if err := a.redis.ExpireAt(ctx, key, day.Add(24*time.Hour+a.retain)).Err(); err != nil {
			return 0, fmt.Errorf("booking: expire ticket sequence: %w", err)
		}
	}
	return int(n), nil
}

type counterDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAllocator keeps sequences in the ticket_counters table.
type PostgresAllocator struct {
	db counterDB
}

// NewPostgresAllocator creates a Postgres backed allocator.
func NewPostgresAllocator(db counterDB) *PostgresAllocator {
	if db == nil {
		panic("booking: database required for ticket counters")
	}
	return &PostgresAllocator{db: db}
}

func (a *PostgresAllocator) Next(ctx context.Context, date string) (int, error) {
	var seq int
	err := a.db.QueryRow(ctx, `
		INSERT INTO ticket_counters (day, seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = ticket_counters.seq + 1
		RETURNING seq
	`, date).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("booking: next ticket sequence: %w", err)
	}
	return seq, nil
}
