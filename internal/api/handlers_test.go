package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironline/price-monitor/internal/database"
	"github.com/ironline/price-monitor/internal/models"
	"github.com/ironline/price-monitor/internal/orchestrator"
)

type fakeStore struct {
	sites            []*models.CompetitorSite
	products         []*models.ScrapedProduct
	product          *models.ScrapedProduct
	history          []*models.PriceHistory
	logs             []*models.ScrapeLog
	lastFilter       database.ProductFilter
	lastHistoryLimit int
}

func (s *fakeStore) ListSites(_ context.Context) ([]*models.CompetitorSite, error) {
	return s.sites, nil
}

func (s *fakeStore) ListProducts(_ context.Context, f database.ProductFilter) ([]*models.ScrapedProduct, error) {
	s.lastFilter = f
	return s.products, nil
}

func (s *fakeStore) GetProductByID(_ context.Context, id int64) (*models.ScrapedProduct, error) {
	if s.product != nil && s.product.ID == id {
		return s.product, nil
	}
	return nil, nil
}

func (s *fakeStore) ListPriceHistory(_ context.Context, _ int64, limit int) ([]*models.PriceHistory, error) {
	s.lastHistoryLimit = limit
	return s.history, nil
}

func (s *fakeStore) ListScrapeLogs(_ context.Context, _ int64, _ int) ([]*models.ScrapeLog, error) {
	return s.logs, nil
}

type fakeLauncher struct {
	started []orchestrator.Run
	known   map[uuid.UUID]*orchestrator.Run
}

func (l *fakeLauncher) Start(siteName string, force bool) *orchestrator.Run {
	run := &orchestrator.Run{
		ID:    uuid.New(),
		State: orchestrator.RunStateRunning,
		Site:  siteName,
		Force: force,
	}
	l.started = append(l.started, *run)
	return run
}

func (l *fakeLauncher) Get(id uuid.UUID) (*orchestrator.Run, error) {
	run, ok := l.known[id]
	if !ok {
		return nil, orchestrator.ErrRunNotFound
	}
	return run, nil
}

func newTestServer(store *fakeStore, launcher *fakeLauncher, token string) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(store, launcher, logger)
	return httptest.NewServer(NewRouter(h, token))
}

func TestTriggerScrapeAccepted(t *testing.T) {
	launcher := &fakeLauncher{}
	srv := newTestServer(&fakeStore{}, launcher, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/scrape", "application/json",
		strings.NewReader(`{"site":"joilart","force":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body TriggerScrapeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, "running", body.State)

	require.Len(t, launcher.started, 1)
	assert.Equal(t, "joilart", launcher.started[0].Site)
	assert.True(t, launcher.started[0].Force)
}

func TestTriggerScrapeEmptyBodyScrapesAll(t *testing.T) {
	launcher := &fakeLauncher{}
	srv := newTestServer(&fakeStore{}, launcher, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/scrape", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, launcher.started, 1)
	assert.Empty(t, launcher.started[0].Site)
	assert.False(t, launcher.started[0].Force)
}

func TestTriggerScrapeRequiresToken(t *testing.T) {
	launcher := &fakeLauncher{}
	srv := newTestServer(&fakeStore{}, launcher, "sekret")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/scrape", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, launcher.started)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/scrape", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, launcher.started, 1)
}

func TestReadEndpointsRequireToken(t *testing.T) {
	store := &fakeStore{
		sites:   []*models.CompetitorSite{{ID: 1, Name: "joilart"}},
		product: &models.ScrapedProduct{ID: 7},
	}
	srv := newTestServer(store, &fakeLauncher{}, "sekret")
	defer srv.Close()

	paths := []string{
		"/api/sites",
		"/api/products",
		"/api/products/7/history",
		"/api/logs",
	}

	for _, path := range paths {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	for _, path := range paths {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer sekret")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// health stays open for probes
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetScrapeRun(t *testing.T) {
	id := uuid.New()
	launcher := &fakeLauncher{known: map[uuid.UUID]*orchestrator.Run{
		id: {ID: id, State: orchestrator.RunStateFinished},
	}}
	srv := newTestServer(&fakeStore{}, launcher, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/scrape/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var run orchestrator.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, orchestrator.RunStateFinished, run.State)

	resp, err = http.Get(srv.URL + "/api/scrape/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/scrape/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListProductsFilterParsing(t *testing.T) {
	store := &fakeStore{products: []*models.ScrapedProduct{
		{ID: 1, Name: "Kapija model A", CurrentPrice: decimal.RequireFromString("45000.00")},
	}}
	srv := newTestServer(store, &fakeLauncher{}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/products?site_id=2&category=gelenderi&on_sale=true&search=kapija&ordering=-price&limit=10&offset=20")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f := store.lastFilter
	assert.Equal(t, int64(2), f.SiteID)
	assert.Equal(t, "gelenderi", f.Category)
	require.NotNil(t, f.OnSale)
	assert.True(t, *f.OnSale)
	assert.Nil(t, f.InStock)
	assert.Equal(t, "kapija", f.Search)
	assert.Equal(t, "-price", f.OrderBy)
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, 20, f.Offset)

	var body struct {
		Count    int               `json:"count"`
		Products []json.RawMessage `json:"products"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
}

func TestListProductsRejectsBadParams(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeLauncher{}, "")
	defer srv.Close()

	for _, path := range []string{
		"/api/products?site_id=abc",
		"/api/products?on_sale=maybe",
		"/api/products?in_stock=2x",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestGetProductHistory(t *testing.T) {
	store := &fakeStore{
		product: &models.ScrapedProduct{ID: 7, Name: "Ograda panel", CurrentPrice: decimal.RequireFromString("12000.00")},
		history: []*models.PriceHistory{
			{ID: 2, ProductID: 7, Price: decimal.RequireFromString("12000.00")},
			{ID: 1, ProductID: 7, Price: decimal.RequireFromString("12500.00")},
		},
	}
	srv := newTestServer(store, &fakeLauncher{}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/products/7/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Product models.ScrapedProduct `json:"product"`
		History []models.PriceHistory `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(7), body.Product.ID)
	assert.Len(t, body.History, 2)

	resp, err = http.Get(srv.URL + "/api/products/99/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProductHistoryClampsLimit(t *testing.T) {
	store := &fakeStore{
		product: &models.ScrapedProduct{ID: 7, CurrentPrice: decimal.RequireFromString("100.00")},
	}
	srv := newTestServer(store, &fakeLauncher{}, "")
	defer srv.Close()

	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", 30},
		{"?limit=10", 10},
		{"?limit=500", 30},
		{"?limit=-1", 30},
	} {
		resp, err := http.Get(srv.URL + "/api/products/7/history" + tc.query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, tc.want, store.lastHistoryLimit, "query %q", tc.query)
	}
}

func TestProductResponseCarriesDerivedPrices(t *testing.T) {
	sale := decimal.RequireFromString("750.00")
	orig := decimal.RequireFromString("1000.00")
	store := &fakeStore{products: []*models.ScrapedProduct{{
		ID:            1,
		Name:          "Kovani vrh",
		CurrentPrice:  sale,
		OnSale:        true,
		SalePrice:     &sale,
		OriginalPrice: &orig,
	}}}
	srv := newTestServer(store, &fakeLauncher{}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Products []map[string]json.RawMessage `json:"products"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Products, 1)
	assert.Equal(t, `"750"`, string(body.Products[0]["effective_price"]))
	assert.Equal(t, `"25"`, string(body.Products[0]["discount_percentage"]))
}

func TestListSitesAndLogs(t *testing.T) {
	store := &fakeStore{
		sites: []*models.CompetitorSite{{ID: 1, Name: "joilart", IsActive: true}},
		logs:  []*models.ScrapeLog{{ID: 3, SiteID: 1, Status: models.ScrapeStatusSuccess}},
	}
	srv := newTestServer(store, &fakeLauncher{}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sites")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var sitesBody struct {
		Sites []models.CompetitorSite `json:"sites"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sitesBody))
	require.Len(t, sitesBody.Sites, 1)
	assert.Equal(t, "joilart", sitesBody.Sites[0].Name)

	resp, err = http.Get(srv.URL + "/api/logs?site_id=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var logsBody struct {
		Logs []models.ScrapeLog `json:"logs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logsBody))
	require.Len(t, logsBody.Logs, 1)
	assert.Equal(t, models.ScrapeStatusSuccess, logsBody.Logs[0].Status)
}
