package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironline/price-monitor/internal/catalog"
	"github.com/ironline/price-monitor/internal/models"
	"github.com/ironline/price-monitor/internal/scrapers"
)

type logEntry struct {
	siteID  int64
	status  models.ScrapeStatus
	found   int
	created int
	updated int
	errMsg  string
}

type siteUpdate struct {
	siteID int64
	status models.SiteStatus
	errMsg string
}

// fakeStore implements Store over in-memory slices so a whole run can be
// asserted without Postgres.
type fakeStore struct {
	sites       []*models.CompetitorSite
	nextLogID   int64
	logs        map[int64]*logEntry
	siteUpdates []siteUpdate
	deactivated []int64
}

func newFakeStore(sites ...*models.CompetitorSite) *fakeStore {
	return &fakeStore{sites: sites, logs: map[int64]*logEntry{}}
}

func (s *fakeStore) ListActiveSites(_ context.Context) ([]*models.CompetitorSite, error) {
	var active []*models.CompetitorSite
	for _, site := range s.sites {
		if site.IsActive {
			active = append(active, site)
		}
	}
	return active, nil
}

func (s *fakeStore) GetSiteByName(_ context.Context, name string) (*models.CompetitorSite, error) {
	for _, site := range s.sites {
		if site.Name == name {
			return site, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateScrapeLog(_ context.Context, siteID int64) (int64, error) {
	s.nextLogID++
	s.logs[s.nextLogID] = &logEntry{siteID: siteID, status: models.ScrapeStatusStarted}
	return s.nextLogID, nil
}

func (s *fakeStore) CompleteScrapeLog(_ context.Context, logID int64, found, created, updated int) error {
	l := s.logs[logID]
	l.status = models.ScrapeStatusSuccess
	l.found, l.created, l.updated = found, created, updated
	return nil
}

func (s *fakeStore) FailScrapeLog(_ context.Context, logID int64, errMsg string) error {
	l := s.logs[logID]
	l.status = models.ScrapeStatusFailed
	l.errMsg = errMsg
	return nil
}

func (s *fakeStore) UpdateSiteAfterRun(_ context.Context, siteID int64, status models.SiteStatus, errMsg string) error {
	s.siteUpdates = append(s.siteUpdates, siteUpdate{siteID: siteID, status: status, errMsg: errMsg})
	return nil
}

func (s *fakeStore) DeactivateMissing(_ context.Context, siteID int64, _ time.Time) (int64, error) {
	s.deactivated = append(s.deactivated, siteID)
	return 0, nil
}

// fakeProductStore backs a real catalog so upsert counting stays honest.
type fakeProductStore struct {
	nextID   int64
	products map[string]*models.ScrapedProduct
	history  int
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{products: map[string]*models.ScrapedProduct{}}
}

func (s *fakeProductStore) key(siteID int64, externalID string) string {
	return fmt.Sprintf("%d/%s", siteID, externalID)
}

func (s *fakeProductStore) GetProduct(_ context.Context, siteID int64, externalID string) (*models.ScrapedProduct, error) {
	p, ok := s.products[s.key(siteID, externalID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeProductStore) InsertProduct(_ context.Context, siteID int64, rec models.ProductRecord) (int64, error) {
	s.nextID++
	s.products[s.key(siteID, rec.ExternalID)] = &models.ScrapedProduct{
		ID:           s.nextID,
		SiteID:       siteID,
		ExternalID:   rec.ExternalID,
		CurrentPrice: rec.CurrentPrice,
	}
	return s.nextID, nil
}

func (s *fakeProductStore) UpdateProduct(_ context.Context, productID int64, rec models.ProductRecord) error {
	for _, p := range s.products {
		if p.ID == productID {
			p.CurrentPrice = rec.CurrentPrice
		}
	}
	return nil
}

func (s *fakeProductStore) InsertPriceHistory(_ context.Context, _ int64, _ models.ProductRecord) error {
	s.history++
	return nil
}

type fakeScraper struct {
	name    string
	records []models.ProductRecord
	err     error
}

func (f *fakeScraper) Name() string { return f.name }

func (f *fakeScraper) ScrapeProducts(_ context.Context) ([]models.ProductRecord, error) {
	return f.records, f.err
}

func factoryFor(byName map[string]scrapers.Scraper) ScraperFactory {
	return func(site *models.CompetitorSite) (scrapers.Scraper, error) {
		s, ok := byName[site.Name]
		if !ok {
			return nil, scrapers.ErrNoScraper
		}
		return s, nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rec(id, price string) models.ProductRecord {
	return models.ProductRecord{
		ExternalID:   id,
		Name:         "Gelender " + id,
		CurrentPrice: decimal.RequireFromString(price),
		InStock:      true,
	}
}

func activeSite(id int64, name string) *models.CompetitorSite {
	return &models.CompetitorSite{ID: id, Name: name, IsActive: true, ScrapeIntervalHours: 24}
}

func TestRunCountsNewAndUpdated(t *testing.T) {
	store := newFakeStore(activeSite(1, "joilart"))
	products := newFakeProductStore()
	cat := catalog.New(products, nil, testLogger())

	// one of the three records already exists, so it counts as updated
	_, err := products.InsertProduct(context.Background(), 1, rec("100", "500.00"))
	require.NoError(t, err)

	factory := factoryFor(map[string]scrapers.Scraper{
		"joilart": &fakeScraper{name: "joilart", records: []models.ProductRecord{
			rec("100", "550.00"), rec("101", "1200.00"), rec("102", "75.50"),
		}},
	})

	o := New(store, cat, factory, testLogger())
	result, err := o.Run(context.Background(), "joilart", false)
	require.NoError(t, err)

	require.Len(t, result.Sites, 1)
	site := result.Sites[0]
	assert.Equal(t, models.ScrapeStatusSuccess, site.Status)
	assert.Equal(t, 3, site.ProductsFound)
	assert.Equal(t, 2, site.ProductsNew)
	assert.Equal(t, 1, site.ProductsUpdated)
	assert.Empty(t, site.Error)

	require.Len(t, store.logs, 1)
	logRow := store.logs[1]
	assert.Equal(t, models.ScrapeStatusSuccess, logRow.status)
	assert.Equal(t, 3, logRow.found)
	assert.Equal(t, 2, logRow.created)
	assert.Equal(t, 1, logRow.updated)

	assert.Equal(t, 3, products.history, "one history row per observation")
	assert.Equal(t, []int64{1}, store.deactivated)

	require.Len(t, store.siteUpdates, 1)
	assert.Equal(t, models.SiteStatusSuccess, store.siteUpdates[0].status)
}

func TestRunIsolatesSiteFailures(t *testing.T) {
	store := newFakeStore(activeSite(1, "joilart"), activeSite(2, "hanan"))
	products := newFakeProductStore()
	cat := catalog.New(products, nil, testLogger())

	factory := factoryFor(map[string]scrapers.Scraper{
		"joilart": &fakeScraper{name: "joilart", err: errors.New("connection refused")},
		"hanan": &fakeScraper{name: "hanan", records: []models.ProductRecord{
			rec("a", "100.00"),
		}},
	})

	o := New(store, cat, factory, testLogger())
	result, err := o.Run(context.Background(), "", true)
	require.NoError(t, err)

	require.Len(t, result.Sites, 2)

	failed := result.Sites[0]
	assert.Equal(t, "joilart", failed.Site)
	assert.Equal(t, models.ScrapeStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "connection refused")

	ok := result.Sites[1]
	assert.Equal(t, "hanan", ok.Site)
	assert.Equal(t, models.ScrapeStatusSuccess, ok.Status)
	assert.Equal(t, 1, ok.ProductsNew)

	// every site got a log row with the matching terminal status
	require.Len(t, store.logs, 2)
	assert.Equal(t, models.ScrapeStatusFailed, store.logs[1].status)
	assert.NotEmpty(t, store.logs[1].errMsg)
	assert.Equal(t, models.ScrapeStatusSuccess, store.logs[2].status)

	require.Len(t, store.siteUpdates, 2)
	assert.Equal(t, models.SiteStatusFailed, store.siteUpdates[0].status)
	assert.Equal(t, models.SiteStatusSuccess, store.siteUpdates[1].status)
}

func TestRunSkipsSitesNotDue(t *testing.T) {
	recent := time.Now().Add(-1 * time.Hour)
	site := activeSite(1, "velog")
	site.LastScrapedAt = &recent

	store := newFakeStore(site)
	factory := factoryFor(map[string]scrapers.Scraper{
		"velog": &fakeScraper{name: "velog", records: []models.ProductRecord{rec("x", "10.00")}},
	})
	cat := catalog.New(newFakeProductStore(), nil, testLogger())
	o := New(store, cat, factory, testLogger())

	result, err := o.Run(context.Background(), "", false)
	require.NoError(t, err)
	require.Len(t, result.Sites, 1)
	assert.True(t, result.Sites[0].Skipped)
	assert.Empty(t, store.logs, "skipped sites get no scrape log")

	// force overrides the interval gate
	result, err = o.Run(context.Background(), "", true)
	require.NoError(t, err)
	assert.False(t, result.Sites[0].Skipped)
	assert.Len(t, store.logs, 1)
}

func TestRunUnknownSite(t *testing.T) {
	store := newFakeStore(activeSite(1, "joilart"))
	cat := catalog.New(newFakeProductStore(), nil, testLogger())
	o := New(store, cat, factoryFor(nil), testLogger())

	_, err := o.Run(context.Background(), "nosuch", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestRunAdapterResolutionFailureIsRecorded(t *testing.T) {
	store := newFakeStore(activeSite(1, "mystery"))
	cat := catalog.New(newFakeProductStore(), nil, testLogger())
	o := New(store, cat, factoryFor(nil), testLogger())

	result, err := o.Run(context.Background(), "mystery", true)
	require.NoError(t, err)
	require.Len(t, result.Sites, 1)
	assert.Equal(t, models.ScrapeStatusFailed, result.Sites[0].Status)
	assert.Contains(t, result.Sites[0].Error, "no scraper")
	assert.Equal(t, models.ScrapeStatusFailed, store.logs[1].status)
}

func TestRunnerLifecycle(t *testing.T) {
	store := newFakeStore(activeSite(1, "joilart"))
	cat := catalog.New(newFakeProductStore(), nil, testLogger())
	factory := factoryFor(map[string]scrapers.Scraper{
		"joilart": &fakeScraper{name: "joilart", records: []models.ProductRecord{rec("1", "99.00")}},
	})
	runner := NewRunner(New(store, cat, factory, testLogger()), testLogger())

	run := runner.Start("joilart", true)
	require.NotEqual(t, "", run.ID.String())

	require.Eventually(t, func() bool {
		got, err := runner.Get(run.ID)
		return err == nil && got.State == RunStateFinished
	}, 2*time.Second, 10*time.Millisecond)

	got, err := runner.Get(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.Sites, 1)
	assert.Equal(t, 1, got.Result.Sites[0].ProductsNew)
	assert.NotNil(t, got.CompletedAt)

	_, err = runner.Get([16]byte{0xde, 0xad})
	assert.ErrorIs(t, err, ErrRunNotFound)
}
