package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

const (
	recentLimit = 10
	dailyWindow = 7
)

// Overview is the headline block of the staff dashboard.
type Overview struct {
	TotalAppointments       int     `json:"total_appointments"`
	TodayAppointments       int     `json:"today_appointments"`
	PendingAppointments     int     `json:"pending_appointments"`
	CompletedAppointments   int     `json:"completed_appointments"`
	TodayCapacityUsed       int     `json:"today_capacity_used"`
	TodayCapacityTotal      int     `json:"today_capacity_total"`
	TodayCapacityPercentage float64 `json:"today_capacity_percentage"`
}

// Summary is the full dashboard payload.
type Summary struct {
	Overview     Overview                    `json:"summary"`
	Recent       []*appointments.Appointment `json:"recent_appointments"`
	Today        []*appointments.Appointment `json:"today_appointments"`
	StatusCounts []StatusCount               `json:"status_counts"`
	DailyCounts  []DailyCount                `json:"daily_counts"`
	CapacityInfo []capacity.Entry            `json:"capacity_info"`
	LastUpdated  time.Time                   `json:"last_updated"`
}

// Service assembles dashboard views.
type Service struct {
	agg    Aggregator
	repo   appointments.Repository
	ledger *capacity.Ledger
	logger *logging.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewService(agg Aggregator, repo appointments.Repository, ledger *capacity.Ledger, logger *logging.Logger) *Service {
	if agg == nil || repo == nil || ledger == nil {
		panic("dashboard: aggregator, repository and ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{agg: agg, repo: repo, ledger: ledger, logger: logger, loc: time.UTC, now: time.Now}
}

func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Stats returns the quick counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.agg.Stats(ctx, s.now().In(s.loc).Format(appointments.DateLayout))
}

// Summary builds the full dashboard.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	now := s.now()
	local := now.In(s.loc)
	today := local.Format(appointments.DateLayout)

	stats, err := s.agg.Stats(ctx, today)
	if err != nil {
		return nil, err
	}
	used, err := s.repo.CountActive(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("dashboard: count today: %w", err)
	}
	eff, err := s.ledger.Effective(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("dashboard: today capacity: %w", err)
	}

	recent, _, err := s.repo.List(ctx, appointments.ListFilter{
		PageSize:  recentLimit,
		SortField: appointments.SortCreatedAt,
		SortDesc:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: recent: %w", err)
	}
	todays, _, err := s.repo.List(ctx, appointments.ListFilter{
		Date:      today,
		SortField: appointments.SortCreatedAt,
		Unpaged:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: today list: %w", err)
	}
	statusCounts, err := s.agg.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	from := local.AddDate(0, 0, -dailyWindow).Format(appointments.DateLayout)
	daily, err := s.agg.DailyCounts(ctx, from)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: capacity entries: %w", err)
	}

	return &Summary{
		Overview: Overview{
			TotalAppointments:       stats.Total,
			TodayAppointments:       stats.Today,
			PendingAppointments:     stats.Pending,
			CompletedAppointments:   stats.Completed,
			TodayCapacityUsed:       used,
			TodayCapacityTotal:      eff.Capacity,
			TodayCapacityPercentage: percentage(used, eff.Capacity),
		},
		Recent:       nonNil(recent),
		Today:        nonNil(todays),
		StatusCounts: statusCounts,
		DailyCounts:  daily,
		CapacityInfo: entries,
		LastUpdated:  now.UTC(),
	}, nil
}

// percentage is used/total rounded to one decimal; unlimited days report 0.
func percentage(used, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(used)/float64(total)*1000) / 10
}

func nonNil(items []*appointments.Appointment) []*appointments.Appointment {
	if items == nil {
		return []*appointments.Appointment{}
	}
	return items
}
