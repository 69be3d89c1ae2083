// Package capacity holds the per-weekday and per-date booking limits.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when no entry exists for a key.
	ErrNotFound = errors.New("capacity: entry not found")

	// ErrInvalidKey is returned for keys that are neither a weekday nor YYYY-MM-DD.
	ErrInvalidKey = errors.New("capacity: key must be a weekday name or YYYY-MM-DD")

	// ErrInvalidCapacity is returned for negative capacities.
	ErrInvalidCapacity = errors.New("capacity: capacity must be zero or positive")
)

// Kind distinguishes recurring weekday entries from one-off date entries.
type Kind string

const (
	KindWeekday Kind = "weekday"
	KindDate    Kind = "date"
)

// Source reports which rule produced an effective capacity.
type Source string

const (
	SourceDate     Source = "date"
	SourceWeekday  Source = "weekday"
	SourceFallback Source = "fallback"
)

// Entry is one stored capacity rule. Capacity 0 means unlimited.
type Entry struct {
	Key      string `json:"key"`
	Kind     Kind   `json:"kind"`
	Capacity int    `json:"capacity"`
}

// Effective is the capacity that applies to a calendar date.
type Effective struct {
	Date     string `json:"date"`
	Capacity int    `json:"capacity"`
	Source   Source `json:"source"`
}

// Unlimited reports whether the date has no cap.
func (e Effective) Unlimited() bool { return e.Capacity == 0 }

// Store persists capacity entries by canonical key.
type Store interface {
	Get(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key string, capacity int) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
}

var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// NormalizeKey returns the canonical key: title-case weekday or YYYY-MM-DD.
func NormalizeKey(raw string) (string, Kind, error) {
	key := strings.TrimSpace(raw)
	for _, d := range weekdays {
		if strings.EqualFold(key, d.String()) {
			return d.String(), KindWeekday, nil
		}
	}
	if t, err := time.Parse(dateLayout, key); err == nil {
		return t.Format(dateLayout), KindDate, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, raw)
}

func kindOf(key string) Kind {
	if _, err := time.Parse(dateLayout, key); err == nil {
		return KindDate
	}
	return KindWeekday
}

func weekdayRank(key string) int {
	for i, d := range weekdays {
		if d.String() == key {
			return i
		}
	}
	return len(weekdays)
}

// sortEntries orders weekdays Monday first, then dates ascending.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Kind != b.Kind {
			return a.Kind == KindWeekday
		}
		if a.Kind == KindWeekday {
			return weekdayRank(a.Key) < weekdayRank(b.Key)
		}
		return a.Key < b.Key
	})
}

// Ledger validates keys and resolves effective capacity over a Store.
type Ledger struct {
	store    Store
	fallback int
}

// NewLedger creates a ledger; fallback applies when neither a date nor a weekday entry exists.
func NewLedger(store Store, fallback int) *Ledger {
	if store == nil {
		panic("capacity: store required")
	}
	if fallback < 0 {
		fallback = 0
	}
	return &Ledger{store: store, fallback: fallback}
}

// Fallback returns the configured default capacity.
func (l *Ledger) Fallback() int { return l.fallback }

// Get returns the stored entry for key.
func (l *Ledger) Get(ctx context.Context, key string) (Entry, error) {
	canonical, kind, err := NormalizeKey(key)
	if err != nil {
		return Entry{}, err
	}
	capacity, err := l.store.Get(ctx, canonical)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: canonical, Kind: kind, Capacity: capacity}, nil
}

// Set stores capacity for key.
func (l *Ledger) Set(ctx context.Context, key string, capacity int) (Entry, error) {
	canonical, kind, err := NormalizeKey(key)
	if err != nil {
		return Entry{}, err
	}
	if capacity < 0 {
		return Entry{}, ErrInvalidCapacity
	}
	if err := l.store.Set(ctx, canonical, capacity); err != nil {
		return Entry{}, err
	}
	return Entry{Key: canonical, Kind: kind, Capacity: capacity}, nil
}

// Delete removes the entry for key.
func (l *Ledger) Delete(ctx context.Context, key string) error {
	canonical, _, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	return l.store.Delete(ctx, canonical)
}

// List returns all entries, weekdays first.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	entries, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// Effective resolves the capacity for date with the configured fallback.
func (l *Ledger) Effective(ctx context.Context, date string) (Effective, error) {
	return l.EffectiveWith(ctx, date, l.fallback)
}

// EffectiveWith resolves the capacity for date: explicit date entry, then
// weekday entry, then fallback.
func (l *Ledger) EffectiveWith(ctx context.Context, date string, fallback int) (Effective, error) {
	day, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return Effective{}, fmt.Errorf("%w: %q", ErrInvalidKey, date)
	}
	canonical := day.Format(dateLayout)

	capacity, err := l.store.Get(ctx, canonical)
	switch {
	case err == nil:
		return Effective{Date: canonical, Capacity: capacity, Source: SourceDate}, nil
	case !errors.Is(err, ErrNotFound):
		return Effective{}, err
	}

	capacity, err = l.store.Get(ctx, day.Weekday().String())
	switch {
	case err == nil:
		return Effective{Date: canonical, Capacity: capacity, Source: SourceWeekday}, nil
	case !errors.Is(err, ErrNotFound):
		return Effective{}, err
	}
	return Effective{Date: canonical, Capacity: fallback, Source: SourceFallback}, nil
}
