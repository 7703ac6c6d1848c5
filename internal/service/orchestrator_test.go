package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"dropsync-api/internal/cache"
	"dropsync-api/internal/config"
	"dropsync-api/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type mockAccounts struct {
	getByID      func(ctx context.Context, id int64) (*domain.Account, error)
	schedulable  func(ctx context.Context) ([]domain.Account, error)
	mu           sync.Mutex
	lastSyncSets []int64
}

func (m *mockAccounts) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	return m.getByID(ctx, id)
}

func (m *mockAccounts) ListSchedulable(ctx context.Context) ([]domain.Account, error) {
	if m.schedulable == nil {
		return nil, nil
	}
	return m.schedulable(ctx)
}

func (m *mockAccounts) UpdateLastSync(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSyncSets = append(m.lastSyncSets, id)
	return nil
}

func (m *mockAccounts) CountActive(context.Context) (int, error) { return 0, nil }

type mockFeeds struct {
	getByID       func(ctx context.Context, id int64) (*domain.Feed, error)
	listByAccount func(ctx context.Context, accountID int64) ([]domain.Feed, error)
}

func (m *mockFeeds) GetByID(ctx context.Context, id int64) (*domain.Feed, error) {
	return m.getByID(ctx, id)
}

func (m *mockFeeds) ListByAccount(ctx context.Context, accountID int64) ([]domain.Feed, error) {
	return m.listByAccount(ctx, accountID)
}

func (m *mockFeeds) UpdateFetchStats(context.Context, int64, int, time.Time) error { return nil }
func (m *mockFeeds) CountActive(context.Context) (int, error)                      { return 0, nil }

type finalizeCall struct {
	jobID   string
	status  domain.JobStatus
	counts  domain.JobCounts
	summary string
}

type mockJobs struct {
	createRunning func(ctx context.Context, job *domain.SyncJob) error
	stuck         func(ctx context.Context, before time.Time) ([]domain.SyncJob, error)
	latest        func(ctx context.Context) (*domain.SyncJob, error)

	mu        sync.Mutex
	finalized []finalizeCall
	done      chan struct{}
}

func newMockJobs() *mockJobs {
	return &mockJobs{done: make(chan struct{}, 8)}
}

func (m *mockJobs) CreateRunning(ctx context.Context, job *domain.SyncJob) error {
	if m.createRunning != nil {
		return m.createRunning(ctx, job)
	}
	return nil
}

func (m *mockJobs) Finalize(_ context.Context, jobID string, status domain.JobStatus, counts domain.JobCounts, errSummary string, _ time.Time) error {
	m.mu.Lock()
	m.finalized = append(m.finalized, finalizeCall{jobID, status, counts, errSummary})
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return nil
}

func (m *mockJobs) GetByID(context.Context, string) (*domain.SyncJob, error)   { return nil, nil }
func (m *mockJobs) GetRunning(context.Context, int64) (*domain.SyncJob, error) { return nil, nil }
func (m *mockJobs) ListByAccount(context.Context, int64, int) ([]domain.SyncJob, error) {
	return nil, nil
}

func (m *mockJobs) ListStuckRunning(ctx context.Context, before time.Time) ([]domain.SyncJob, error) {
	if m.stuck == nil {
		return nil, nil
	}
	return m.stuck(ctx, before)
}

func (m *mockJobs) Latest(ctx context.Context) (*domain.SyncJob, error) {
	if m.latest == nil {
		return nil, nil
	}
	return m.latest(ctx)
}

func (m *mockJobs) lastFinalize(t *testing.T) finalizeCall {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was never finalized")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized[len(m.finalized)-1]
}

type mockFetcher struct {
	mu    sync.Mutex
	calls int
	fetch func(call int, url string) ([]byte, error)
}

func (m *mockFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.fetch(call, url)
}

type mockSession struct {
	listings func(ctx context.Context) ([]domain.Listing, error)

	mu      sync.Mutex
	applied []domain.QuantityUpdate
	apply   func(updates []domain.QuantityUpdate) []domain.UpdateOutcome
}

func (m *mockSession) FetchListings(ctx context.Context) ([]domain.Listing, error) {
	if m.listings == nil {
		return nil, nil
	}
	return m.listings(ctx)
}

func (m *mockSession) Apply(_ context.Context, updates []domain.QuantityUpdate) []domain.UpdateOutcome {
	m.mu.Lock()
	m.applied = append(m.applied, updates...)
	m.mu.Unlock()
	if m.apply != nil {
		return m.apply(updates)
	}
	// Default: ack everything.
	outcomes := make([]domain.UpdateOutcome, len(updates))
	for i, upd := range updates {
		outcomes[i] = domain.UpdateOutcome{SKU: upd.SKU, ItemID: upd.ItemID, Updated: true}
	}
	return outcomes
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		FetchTimeout:     time.Second,
		FetchRetries:     3,
		FetchBackoffBase: time.Millisecond,
		MaxRunDuration:   time.Minute,
	}
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:            7,
		StoreName:     "gadget-barn",
		SyncEnabled:   true,
		SyncFrequency: domain.FrequencyManual,
		QuantityMode:  domain.QuantityModeExact,
	}
}

func testFeed(id int64) domain.Feed {
	return domain.Feed{
		ID:             id,
		AccountID:      7,
		Name:           fmt.Sprintf("feed-%d", id),
		URL:            fmt.Sprintf("https://supplier.example/feed%d.csv", id),
		Format:         domain.FormatCustom,
		SKUColumn:      "sku",
		QuantityColumn: "qty",
		IsActive:       true,
	}
}

func newTestOrchestrator(accounts *mockAccounts, feeds *mockFeeds, jobs *mockJobs, fetcher *mockFetcher, session *mockSession) *Orchestrator {
	log := testLogger()
	resolver := NewResolver(cache.NewMemoryListingIndex(), log)
	factory := func(domain.Credentials) MarketplaceSession { return session }
	o := NewOrchestrator(accounts, feeds, jobs, fetcher, resolver, factory, NewMemoryAccountLocker(), testSyncConfig(), log)
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

func TestSyncRunSuccess(t *testing.T) {
	accounts := &mockAccounts{getByID: func(_ context.Context, id int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()
	fetcher := &mockFetcher{fetch: func(int, string) ([]byte, error) {
		return []byte("sku,qty\nA1,5\nA2,0\nA3,3\n"), nil
	}}
	session := &mockSession{listings: func(context.Context) ([]domain.Listing, error) {
		return []domain.Listing{
			{ItemID: "110001", SKU: "A1", Quantity: 2},
			{ItemID: "110002", SKU: "A2", Quantity: 4},
			{ItemID: "110003", SKU: "A3", Quantity: 3},
		}, nil
	}}

	o := newTestOrchestrator(accounts, feeds, jobs, fetcher, session)

	job, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual)
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if job.Status != domain.JobRunning {
		t.Fatalf("job status = %s, want running", job.Status)
	}

	fin := jobs.lastFinalize(t)
	if fin.jobID != job.ID {
		t.Fatalf("finalized job %s, want %s", fin.jobID, job.ID)
	}
	if fin.status != domain.JobSuccess {
		t.Fatalf("status = %s, want success (summary %q)", fin.status, fin.summary)
	}
	// A1 5!=2 updated, A2 0!=4 updated (out of stock), A3 3==3 skipped.
	want := domain.JobCounts{Checked: 3, Updated: 2, Skipped: 1, OutOfStock: 1}
	if fin.counts != want {
		t.Fatalf("counts = %+v, want %+v", fin.counts, want)
	}
	if got := fin.counts.Updated + fin.counts.Failed + fin.counts.Skipped; got != fin.counts.Checked {
		t.Fatalf("checked %d != updated+failed+skipped %d", fin.counts.Checked, got)
	}
	if len(session.applied) != 2 {
		t.Fatalf("pushed %d updates, want 2", len(session.applied))
	}

	o.Wait()
	accounts.mu.Lock()
	defer accounts.mu.Unlock()
	if len(accounts.lastSyncSets) != 1 || accounts.lastSyncSets[0] != 7 {
		t.Fatalf("last sync updates = %v, want [7]", accounts.lastSyncSets)
	}
}

func TestSyncRunUnknownSKU(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()
	fetcher := &mockFetcher{fetch: func(int, string) ([]byte, error) {
		return []byte("sku,qty\nA1,5\nGHOST,9\n"), nil
	}}
	session := &mockSession{listings: func(context.Context) ([]domain.Listing, error) {
		return []domain.Listing{{ItemID: "110001", SKU: "A1", Quantity: 0}}, nil
	}}

	o := newTestOrchestrator(accounts, feeds, jobs, fetcher, session)
	if _, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	fin := jobs.lastFinalize(t)
	if fin.status != domain.JobPartialFailure {
		t.Fatalf("status = %s, want partial_failure", fin.status)
	}
	want := domain.JobCounts{Checked: 2, Updated: 1, Failed: 1}
	if fin.counts != want {
		t.Fatalf("counts = %+v, want %+v", fin.counts, want)
	}
	o.Wait()
}

func TestSyncRunSiblingFeedSurvivesFailure(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	badFeed := testFeed(1)
	goodFeed := testFeed(2)
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{badFeed, goodFeed}, nil
	}}
	jobs := newMockJobs()
	fetcher := &mockFetcher{fetch: func(_ int, url string) ([]byte, error) {
		if url == badFeed.URL {
			return nil, &domain.FetchError{URL: url, Err: errors.New("connection refused")}
		}
		return []byte("sku,qty\nB1,4\n"), nil
	}}
	session := &mockSession{listings: func(context.Context) ([]domain.Listing, error) {
		return []domain.Listing{{ItemID: "220001", SKU: "B1", Quantity: 1}}, nil
	}}

	o := newTestOrchestrator(accounts, feeds, jobs, fetcher, session)
	if _, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	fin := jobs.lastFinalize(t)
	if fin.status != domain.JobPartialFailure {
		t.Fatalf("status = %s, want partial_failure", fin.status)
	}
	if fin.counts.Updated != 1 {
		t.Fatalf("updated = %d, want 1 from surviving feed", fin.counts.Updated)
	}
	if !strings.Contains(fin.summary, "feed 1") {
		t.Fatalf("summary %q does not name the failed feed", fin.summary)
	}
	o.Wait()
}

func TestSyncRunAllFeedsFailed(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()
	fetcher := &mockFetcher{fetch: func(_ int, url string) ([]byte, error) {
		return nil, &domain.FetchError{URL: url, Err: errors.New("504 gateway timeout")}
	}}
	session := &mockSession{}

	o := newTestOrchestrator(accounts, feeds, jobs, fetcher, session)
	if _, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	fin := jobs.lastFinalize(t)
	if fin.status != domain.JobFailed {
		t.Fatalf("status = %s, want failed", fin.status)
	}
	if fin.counts.Checked != 0 {
		t.Fatalf("checked = %d, want 0", fin.counts.Checked)
	}
	if fin.summary == "" {
		t.Fatal("expected an error summary")
	}
	// Retry budget: 3 attempts for the single feed.
	if fetcher.calls != 3 {
		t.Fatalf("fetch attempts = %d, want 3", fetcher.calls)
	}

	o.Wait()
	accounts.mu.Lock()
	defer accounts.mu.Unlock()
	if len(accounts.lastSyncSets) != 0 {
		t.Fatal("failed run must not update last sync")
	}
}

func TestSyncRunFetchRetriesThenSucceeds(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()
	fetcher := &mockFetcher{fetch: func(call int, url string) ([]byte, error) {
		if call < 3 {
			return nil, &domain.FetchError{URL: url, Err: errors.New("timeout")}
		}
		return []byte("sku,qty\nA1,5\n"), nil
	}}
	session := &mockSession{listings: func(context.Context) ([]domain.Listing, error) {
		return []domain.Listing{{ItemID: "110001", SKU: "A1", Quantity: 0}}, nil
	}}

	o := newTestOrchestrator(accounts, feeds, jobs, fetcher, session)

	var delays []time.Duration
	var mu sync.Mutex
	o.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	if _, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	fin := jobs.lastFinalize(t)
	if fin.status != domain.JobSuccess {
		t.Fatalf("status = %s, want success", fin.status)
	}
	o.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
	if delays[1] != 2*delays[0] {
		t.Fatalf("backoff not doubling: %v then %v", delays[0], delays[1])
	}
}

func TestSyncRunCountsMalformedRows(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()
	fetcher := &mockFetcher{fetch: func(int, string) ([]byte, error) {
		return []byte("sku,qty\nA1,5\nA2,not-a-number\n"), nil
	}}
	session := &mockSession{listings: func(context.Context) ([]domain.Listing, error) {
		return []domain.Listing{{ItemID: "110001", SKU: "A1", Quantity: 0}}, nil
	}}

	o := newTestOrchestrator(accounts, feeds, jobs, fetcher, session)
	if _, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	fin := jobs.lastFinalize(t)
	want := domain.JobCounts{Checked: 2, Updated: 1, Failed: 1}
	if fin.counts != want {
		t.Fatalf("counts = %+v, want %+v", fin.counts, want)
	}
	if fin.status != domain.JobPartialFailure {
		t.Fatalf("status = %s, want partial_failure", fin.status)
	}
	o.Wait()
}

func TestTriggerSyncAlreadyRunning(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()

	locker := NewMemoryAccountLocker()
	if _, err := locker.Acquire(context.Background(), 7, time.Minute); err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}

	log := testLogger()
	o := NewOrchestrator(accounts, feeds, jobs, &mockFetcher{}, NewResolver(cache.NewMemoryListingIndex(), log),
		func(domain.Credentials) MarketplaceSession { return &mockSession{} }, locker, testSyncConfig(), log)

	_, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual)
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestTriggerSyncLedgerConflictReleasesLock(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()
	jobs.createRunning = func(context.Context, *domain.SyncJob) error {
		return domain.ErrAlreadyRunning
	}

	locker := NewMemoryAccountLocker()
	log := testLogger()
	o := NewOrchestrator(accounts, feeds, jobs, &mockFetcher{}, NewResolver(cache.NewMemoryListingIndex(), log),
		func(domain.Credentials) MarketplaceSession { return &mockSession{} }, locker, testSyncConfig(), log)

	_, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual)
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}

	// The lock must have been released on the ledger conflict.
	lock, err := locker.Acquire(context.Background(), 7, time.Minute)
	if err != nil {
		t.Fatalf("lock still held after failed trigger: %v", err)
	}
	_ = lock.Release(context.Background())
}

func TestTriggerSyncFeedOwnership(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	other := testFeed(9)
	other.AccountID = 99
	feeds := &mockFeeds{getByID: func(context.Context, int64) (*domain.Feed, error) {
		return &other, nil
	}}

	log := testLogger()
	o := NewOrchestrator(accounts, feeds, newMockJobs(), &mockFetcher{}, NewResolver(cache.NewMemoryListingIndex(), log),
		func(domain.Credentials) MarketplaceSession { return &mockSession{} }, NewMemoryAccountLocker(), testSyncConfig(), log)

	feedID := int64(9)
	if _, err := o.TriggerSync(context.Background(), 7, &feedID, domain.TriggerManual); err == nil {
		t.Fatal("expected ownership error")
	}
}

func TestTriggerSyncNoFeeds(t *testing.T) {
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return testAccount(), nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return nil, nil
	}}

	log := testLogger()
	o := NewOrchestrator(accounts, feeds, newMockJobs(), &mockFetcher{}, NewResolver(cache.NewMemoryListingIndex(), log),
		func(domain.Credentials) MarketplaceSession { return &mockSession{} }, NewMemoryAccountLocker(), testSyncConfig(), log)

	if _, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual); err == nil {
		t.Fatal("expected error for account without feeds")
	}
}

func TestSyncRunBinaryMode(t *testing.T) {
	account := testAccount()
	account.QuantityMode = domain.QuantityModeBinary
	accounts := &mockAccounts{getByID: func(context.Context, int64) (*domain.Account, error) {
		return account, nil
	}}
	feeds := &mockFeeds{listByAccount: func(context.Context, int64) ([]domain.Feed, error) {
		return []domain.Feed{testFeed(1)}, nil
	}}
	jobs := newMockJobs()
	fetcher := &mockFetcher{fetch: func(int, string) ([]byte, error) {
		return []byte("sku,qty\nA1,37\nA2,0\n"), nil
	}}
	session := &mockSession{listings: func(context.Context) ([]domain.Listing, error) {
		return []domain.Listing{
			{ItemID: "110001", SKU: "A1", Quantity: 0},
			{ItemID: "110002", SKU: "A2", Quantity: 1},
		}, nil
	}}

	o := newTestOrchestrator(accounts, feeds, jobs, fetcher, session)
	if _, err := o.TriggerSync(context.Background(), 7, nil, domain.TriggerManual); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	fin := jobs.lastFinalize(t)
	if fin.status != domain.JobSuccess {
		t.Fatalf("status = %s, want success", fin.status)
	}
	o.Wait()

	for _, upd := range session.applied {
		if upd.NewQty != 0 && upd.NewQty != 1 {
			t.Fatalf("binary mode pushed quantity %d for %s", upd.NewQty, upd.SKU)
		}
	}
}
