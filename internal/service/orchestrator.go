package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dropsync-api/internal/config"
	"dropsync-api/internal/domain"
	"dropsync-api/internal/feed"
	"dropsync-api/internal/repository"
	"dropsync-api/pkg/uid"
)

// FeedFetcher retrieves raw feed content. Satisfied by *feed.Fetcher.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// MarketplaceSession is one account's view of the marketplace API:
// listing retrieval plus batched, rate-limited quantity updates.
type MarketplaceSession interface {
	FetchListings(ctx context.Context) ([]domain.Listing, error)
	Apply(ctx context.Context, updates []domain.QuantityUpdate) []domain.UpdateOutcome
}

// SessionFactory builds a session from an account's credential bundle.
type SessionFactory func(creds domain.Credentials) MarketplaceSession

// Orchestrator drives the sync pipeline for account+feed pairs:
// fetch -> parse -> transform -> resolve -> update, producing one job
// record per run. Single-flight per account is enforced by the lock plus
// the ledger's running-job check.
type Orchestrator struct {
	accounts repository.AccountRepository
	feeds    repository.FeedRepository
	jobs     repository.JobRepository
	fetcher  FeedFetcher
	resolver *Resolver
	sessions SessionFactory
	locker   AccountLocker
	log      *logrus.Logger
	cfg      config.SyncConfig

	wg    sync.WaitGroup
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	accounts repository.AccountRepository,
	feeds repository.FeedRepository,
	jobs repository.JobRepository,
	fetcher FeedFetcher,
	resolver *Resolver,
	sessions SessionFactory,
	locker AccountLocker,
	cfg config.SyncConfig,
	log *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		accounts: accounts,
		feeds:    feeds,
		jobs:     jobs,
		fetcher:  fetcher,
		resolver: resolver,
		sessions: sessions,
		locker:   locker,
		cfg:      cfg,
		log:      log,
		sleep:    sleepFor,
	}
}

// TriggerSync starts a sync run for the account, against one feed or all of
// its active feeds. The running job record is created synchronously so the
// caller observes it immediately; the pipeline itself runs asynchronously.
// Returns domain.ErrAlreadyRunning when the account has a run in flight.
func (o *Orchestrator) TriggerSync(ctx context.Context, accountID int64, feedID *int64, trigger domain.TriggerSource) (*domain.SyncJob, error) {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var runFeeds []domain.Feed
	if feedID != nil {
		f, err := o.feeds.GetByID(ctx, *feedID)
		if err != nil {
			return nil, err
		}
		if f.AccountID != accountID {
			return nil, fmt.Errorf("feed %d does not belong to account %d", *feedID, accountID)
		}
		runFeeds = []domain.Feed{*f}
	} else {
		runFeeds, err = o.feeds.ListByAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
	}
	if len(runFeeds) == 0 {
		return nil, fmt.Errorf("account %d has no active feeds", accountID)
	}

	lock, err := o.locker.Acquire(ctx, accountID, o.cfg.MaxRunDuration)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.SyncJob{
		ID:        uid.New(),
		AccountID: accountID,
		FeedID:    feedID,
		Status:    domain.JobRunning,
		Trigger:   trigger,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := o.jobs.CreateRunning(ctx, job); err != nil {
		_ = lock.Release(ctx)
		return nil, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		// The run outlives the trigger request; it gets its own context
		// bounded by the maximum run duration.
		runCtx, cancel := context.WithTimeout(context.Background(), o.cfg.MaxRunDuration)
		defer cancel()
		defer func() { _ = lock.Release(runCtx) }()

		o.run(runCtx, account, runFeeds, job)
	}()

	return job, nil
}

// Wait blocks until all in-flight runs finish, for graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

type feedResult struct {
	feed      domain.Feed
	records   []domain.StockRecord
	malformed int
	err       error
}

func (o *Orchestrator) run(ctx context.Context, account *domain.Account, runFeeds []domain.Feed, job *domain.SyncJob) {
	log := o.log.WithFields(logrus.Fields{
		"component": "orchestrator",
		"account":   account.ID,
		"job":       job.ID,
	})
	log.WithField("feeds", len(runFeeds)).Info("sync run started")

	session := o.sessions(account.Credentials)

	// Feeds fetch and parse concurrently; quantity updates are merged
	// into one serialized batch below so writes to the same listing
	// never interleave.
	results := make([]feedResult, len(runFeeds))
	var fwg sync.WaitGroup
	for i := range runFeeds {
		fwg.Add(1)
		go func(i int) {
			defer fwg.Done()
			records, malformed, err := o.fetchAndParse(ctx, runFeeds[i], account.QuantityMode)
			results[i] = feedResult{feed: runFeeds[i], records: records, malformed: malformed, err: err}
		}(i)
	}
	fwg.Wait()

	var counts domain.JobCounts
	var feedErrs []string
	feedsOK := 0

	var order []string
	merged := make(map[string]int)
	for _, res := range results {
		if res.err != nil {
			feedErrs = append(feedErrs, fmt.Sprintf("feed %d: %v", res.feed.ID, res.err))
			log.WithField("feed", res.feed.ID).Warnf("feed skipped: %v", res.err)
			continue
		}
		feedsOK++

		// Malformed rows were checked and failed; they never reach the
		// marketplace.
		counts.Checked += res.malformed
		counts.Failed += res.malformed

		for _, rec := range res.records {
			if _, seen := merged[rec.SKU]; !seen {
				order = append(order, rec.SKU)
			}
			merged[rec.SKU] = rec.Quantity
		}

		if err := o.feeds.UpdateFetchStats(ctx, res.feed.ID, len(res.records), time.Now().UTC()); err != nil {
			log.WithField("feed", res.feed.ID).Warnf("failed to record fetch stats: %v", err)
		}
	}

	if feedsOK == 0 {
		o.finalize(ctx, account, job, domain.JobFailed, counts, strings.Join(feedErrs, "; "))
		return
	}

	records := make([]domain.StockRecord, 0, len(order))
	for _, sku := range order {
		records = append(records, domain.StockRecord{SKU: sku, Quantity: merged[sku]})
	}

	resolutions, err := o.resolver.ResolveAll(ctx, account.ID, records, session.FetchListings)
	if err != nil {
		feedErrs = append(feedErrs, fmt.Sprintf("listing resolution: %v", err))
		o.finalize(ctx, account, job, domain.JobFailed, counts, strings.Join(feedErrs, "; "))
		return
	}

	var updates []domain.QuantityUpdate
	for _, res := range resolutions {
		counts.Checked++
		if !res.Found {
			counts.Failed++
			continue
		}
		if res.Record.Quantity == res.CurrentQty {
			counts.Skipped++
			continue
		}
		updates = append(updates, domain.QuantityUpdate{
			ItemID: res.ItemID,
			SKU:    res.Record.SKU,
			OldQty: res.CurrentQty,
			NewQty: res.Record.Quantity,
		})
	}

	newQty := make(map[string]int, len(updates))
	for _, upd := range updates {
		newQty[upd.SKU] = upd.NewQty
	}

	for _, out := range session.Apply(ctx, updates) {
		if !out.Updated {
			counts.Failed++
			log.WithField("sku", out.SKU).Debugf("update failed: %s", out.Reason)
			continue
		}
		counts.Updated++
		if newQty[out.SKU] == 0 {
			counts.OutOfStock++
		}
		if err := o.resolver.RecordPush(ctx, account.ID, out.SKU, out.ItemID, newQty[out.SKU]); err != nil {
			log.WithField("sku", out.SKU).Warnf("failed to record pushed quantity: %v", err)
		}
	}

	status := domain.FinalStatus(counts)
	// A failed sibling feed degrades an otherwise clean run.
	if len(feedErrs) > 0 && status == domain.JobSuccess {
		status = domain.JobPartialFailure
	}

	o.finalize(ctx, account, job, status, counts, strings.Join(feedErrs, "; "))
}

// fetchAndParse runs the per-feed half of the pipeline with the fetch
// retry budget applied.
func (o *Orchestrator) fetchAndParse(ctx context.Context, f domain.Feed, mode domain.QuantityMode) ([]domain.StockRecord, int, error) {
	parser, err := feed.ParserFor(f)
	if err != nil {
		return nil, 0, err
	}

	var body []byte
	for attempt := 1; ; attempt++ {
		body, err = o.fetcher.Fetch(ctx, f.URL)
		if err == nil {
			break
		}
		if attempt >= o.cfg.FetchRetries {
			return nil, 0, err
		}
		delay := o.cfg.FetchBackoffBase << (attempt - 1)
		if serr := o.sleep(ctx, delay); serr != nil {
			return nil, 0, err
		}
	}

	res, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	return feed.Transform(res.Records, mode), res.Malformed, nil
}

func (o *Orchestrator) finalize(ctx context.Context, account *domain.Account, job *domain.SyncJob, status domain.JobStatus, counts domain.JobCounts, errSummary string) {
	now := time.Now().UTC()

	if err := o.jobs.Finalize(ctx, job.ID, status, counts, errSummary, now); err != nil {
		o.log.WithField("job", job.ID).Errorf("failed to finalize job: %v", err)
		return
	}

	if status != domain.JobFailed {
		if err := o.accounts.UpdateLastSync(ctx, account.ID, now); err != nil {
			o.log.WithField("account", account.ID).Warnf("failed to update last sync: %v", err)
		}
	}

	o.log.WithFields(logrus.Fields{
		"component": "orchestrator",
		"account":   account.ID,
		"job":       job.ID,
		"status":    status,
		"checked":   counts.Checked,
		"updated":   counts.Updated,
		"failed":    counts.Failed,
		"skipped":   counts.Skipped,
	}).Info("sync run finished")
}

func sleepFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
