package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"rentdesk/internal/amqp"
	"rentdesk/internal/cache"
	"rentdesk/internal/core"
	"rentdesk/internal/storage"
)

func newStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	var (
		mu sync.Mutex
		ts = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts = ts.Add(time.Second)
		return ts
	}
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "rentdesk.db"), storage.WithNow(now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func createLease(t *testing.T, repo *storage.SQLiteRepository, mutate ...func(*core.Lease)) core.Lease {
	t.Helper()
	l := core.Lease{
		TenantID:       uuid.New(),
		LandlordID:     uuid.New(),
		RentAmount:     core.Cents(500000),
		MonthlyDueDate: 5,
		StartDate:      core.NewDate(2024, 1, 1),
		Status:         core.LeaseActive,
	}
	for _, m := range mutate {
		m(&l)
	}
	created, err := repo.CreateLease(context.Background(), l)
	require.NoError(t, err)
	return created
}

func newSummaryCache() *cache.LRUCache[CachedSummary] {
	return cache.NewLRUCache[CachedSummary](100, time.Hour)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.PaymentEvent
	err    error
}

func (p *recordingPublisher) PublishPaymentEvent(_ context.Context, ev *amqp.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *ev)
	return nil
}

func (p *recordingPublisher) Events() []amqp.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]amqp.PaymentEvent(nil), p.events...)
}
