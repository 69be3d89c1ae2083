// Command seed-capacity writes capacity ledger entries, e.g.
//
//	seed-capacity Monday=12 Friday=0 2025-12-25=0
//
// A capacity of 0 means unlimited. With -hash it prints a bcrypt hash for
// STAFF_PASSWORD_HASH instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-frontdesk/internal/app/bootstrap"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	appconfig "github.com/wolfman30/clinic-frontdesk/internal/config"
	"github.com/wolfman30/clinic-frontdesk/internal/staffauth"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

type assignment struct {
	key      string
	capacity int
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	hash := flag.String("hash", "", "print a bcrypt hash of this password and exit")
	list := flag.Bool("list", false, "print the stored entries after seeding")
	flag.Parse()

	if *hash != "" {
		h, err := staffauth.HashPassword(*hash)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(h)
		return
	}

	assignments, err := parseAssignments(flag.Args())
	if err != nil {
		log.Fatal(err)
	}

	cfg := appconfig.Load()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	ledger := capacity.NewLedger(capacity.NewPostgresStore(pool), cfg.DefaultDailyCapacity)
	if err := seed(ctx, ledger, assignments, logger); err != nil {
		log.Fatal(err)
	}

	if *list {
		entries, err := ledger.List(ctx)
		if err != nil {
			log.Fatalf("list capacity: %v", err)
		}
		fmt.Printf("fallback: %d\n", ledger.Fallback())
		for _, e := range entries {
			fmt.Printf("%-12s %-8s %d\n", e.Key, e.Kind, e.Capacity)
		}
	}
}

// parseAssignments reads key=capacity arguments and rejects malformed ones up front.
func parseAssignments(args []string) ([]assignment, error) {
	out := make([]assignment, 0, len(args))
	for _, arg := range args {
		rawKey, rawCap, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=capacity, got %q", arg)
		}
		key, _, err := capacity.NormalizeKey(rawKey)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(rawCap))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid capacity for %s: %q", key, rawCap)
		}
		out = append(out, assignment{key: key, capacity: n})
	}
	return out, nil
}

func seed(ctx context.Context, ledger *capacity.Ledger, assignments []assignment, logger *logging.Logger) error {
	for _, a := range assignments {
		entry, err := ledger.Set(ctx, a.key, a.capacity)
		if err != nil {
			return fmt.Errorf("set %s: %w", a.key, err)
		}
		logger.Info("capacity seeded", "key", entry.Key, "kind", entry.Kind, "capacity", entry.Capacity)
	}
	return nil
}
