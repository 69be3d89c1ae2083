package dashboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
)

// Stats are the quick counters shown on the dashboard widgets.
type Stats struct {
	Total     int `json:"total"`
	Today     int `json:"today"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

type StatusCount struct {
	Status appointments.Status `json:"status"`
	Count  int                 `json:"count"`
}

type DailyCount struct {
	Date  string `json:"scheduled_date"`
	Count int    `json:"count"`
}

// Aggregator computes counts over all appointments.
type Aggregator interface {
	Stats(ctx context.Context, today string) (Stats, error)
	StatusCounts(ctx context.Context) ([]StatusCount, error)
	DailyCounts(ctx context.Context, fromDate string) ([]DailyCount, error)
}

type statsDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresAggregator runs the aggregates in SQL.
type PostgresAggregator struct {
	db statsDB
}

func NewPostgresAggregator(db statsDB) *PostgresAggregator {
	if db == nil {
		panic("dashboard: database required")
	}
	return &PostgresAggregator{db: db}
}

func (p *PostgresAggregator) Stats(ctx context.Context, today string) (Stats, error) {
	var s Stats
	err := p.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE scheduled_date = $1),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'completed')
		FROM appointments
	`, today).Scan(&s.Total, &s.Today, &s.Pending, &s.Completed)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard: stats: %w", err)
	}
	return s, nil
}

func (p *PostgresAggregator) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	rows, err := p.db.Query(ctx, `
		SELECT COALESCE(status, 'pending'), COUNT(*)
		FROM appointments
		GROUP BY 1
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("dashboard: status counts: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var raw string
		var c StatusCount
		if err := rows.Scan(&raw, &c.Count); err != nil {
			return nil, fmt.Errorf("dashboard: scan status count: %w", err)
		}
		c.Status = appointments.Status(raw)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresAggregator) DailyCounts(ctx context.Context, fromDate string) ([]DailyCount, error) {
	rows, err := p.db.Query(ctx, `
		SELECT to_char(scheduled_date, 'YYYY-MM-DD'), COUNT(*)
		FROM appointments
		WHERE scheduled_date >= $1
		GROUP BY scheduled_date
		ORDER BY scheduled_date ASC
	`, fromDate)
	if err != nil {
		return nil, fmt.Errorf("dashboard: daily counts: %w", err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("dashboard: scan daily count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RepositoryAggregator walks the repository, for the in-memory setup.
type RepositoryAggregator struct {
	repo appointments.Repository
}

func NewRepositoryAggregator(repo appointments.Repository) *RepositoryAggregator {
	if repo == nil {
		panic("dashboard: repository required")
	}
	return &RepositoryAggregator{repo: repo}
}

func (r *RepositoryAggregator) all(ctx context.Context) ([]*appointments.Appointment, error) {
	items, _, err := r.repo.List(ctx, appointments.ListFilter{Unpaged: true})
	if err != nil {
		return nil, fmt.Errorf("dashboard: list appointments: %w", err)
	}
	return items, nil
}

func (r *RepositoryAggregator) Stats(ctx context.Context, today string) (Stats, error) {
	items, err := r.all(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Total: len(items)}
	for _, a := range items {
		if a.ScheduledDate == today {
			s.Today++
		}
		switch a.Status {
		case appointments.StatusPending:
			s.Pending++
		case appointments.StatusCompleted:
			s.Completed++
		}
	}
	return s, nil
}

func (r *RepositoryAggregator) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	items, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[appointments.Status]int{}
	for _, a := range items {
		counts[a.Status]++
	}
	out := make([]StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (r *RepositoryAggregator) DailyCounts(ctx context.Context, fromDate string) ([]DailyCount, error) {
	items, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, a := range items {
		if a.ScheduledDate >= fromDate {
			counts[a.ScheduledDate]++
		}
	}
	out := make([]DailyCount, 0, len(counts))
	for date, n := range counts {
		out = append(out, DailyCount{Date: date, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
