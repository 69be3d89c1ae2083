package bootstrap

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	appconfig "github.com/wolfman30/clinic-frontdesk/internal/config"
	"github.com/wolfman30/clinic-frontdesk/internal/dashboard"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

const defaultCacheTTL = 5 * time.Minute

// AuditStore records events and reads them back per subject.
type AuditStore interface {
	audit.Recorder
	ListBySubject(ctx context.Context, subject string, limit int) ([]audit.Event, error)
}

// Stores is the persistence layer picked for this process.
type Stores struct {
	Appointments appointments.Repository
	Capacity     capacity.Store
	Tickets      booking.TicketAllocator
	Aggregator   dashboard.Aggregator
	Audit        AuditStore
	Backend      string
}

// BuildStores prefers Postgres and falls back to in-memory stores.
// Redis, when present, caches capacity reads and allocates tickets if there
// is no database.
func BuildStores(cfg *appconfig.Config, pool *pgxpool.Pool, sqlDB *sql.DB, redisClient *redis.Client, logger *logging.Logger) Stores {
	if logger == nil {
		logger = logging.Default()
	}
	var s Stores
	if pool != nil {
		s = Stores{
			Appointments: appointments.NewPostgresRepository(pool),
			Capacity:     capacity.NewPostgresStore(pool),
			Tickets:      booking.NewPostgresAllocator(pool),
			Aggregator:   dashboard.NewPostgresAggregator(pool),
			Backend:      "postgres",
		}
	} else {
		repo := appointments.NewInMemoryRepository()
		s = Stores{
			Appointments: repo,
			Capacity:     capacity.NewMemoryStore(),
			Tickets:      booking.NewMemoryAllocator(),
			Aggregator:   dashboard.NewRepositoryAggregator(repo),
			Backend:      "memory",
		}
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
	}

	if sqlDB != nil {
		s.Audit = audit.NewStore(sqlDB)
	} else {
		s.Audit = audit.NewMemoryStore()
	}

	if redisClient != nil {
		ttl := defaultCacheTTL
		if cfg != nil && cfg.CapacityCacheTTL > 0 {
			ttl = cfg.CapacityCacheTTL
		}
		s.Capacity = capacity.NewCachedStore(s.Capacity, redisClient, ttl, logger)
		if pool == nil {
			s.Tickets = booking.NewRedisAllocator(redisClient)
		}
	}
	return s
}
