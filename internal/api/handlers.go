package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ironline/price-monitor/internal/database"
	"github.com/ironline/price-monitor/internal/models"
	"github.com/ironline/price-monitor/internal/orchestrator"
)

// Store is the read side of the database the API serves. *database.DB
// satisfies it.
type Store interface {
	ListSites(ctx context.Context) ([]*models.CompetitorSite, error)
	ListProducts(ctx context.Context, f database.ProductFilter) ([]*models.ScrapedProduct, error)
	GetProductByID(ctx context.Context, id int64) (*models.ScrapedProduct, error)
	ListPriceHistory(ctx context.Context, productID int64, limit int) ([]*models.PriceHistory, error)
	ListScrapeLogs(ctx context.Context, siteID int64, limit int) ([]*models.ScrapeLog, error)
}

// Launcher starts scrape runs in the background. *orchestrator.Runner
// satisfies it.
type Launcher interface {
	Start(siteName string, force bool) *orchestrator.Run
	Get(id uuid.UUID) (*orchestrator.Run, error)
}

type Handlers struct {
	store    Store
	launcher Launcher
	logger   *slog.Logger
}

func NewHandlers(store Store, launcher Launcher, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:    store,
		launcher: launcher,
		logger:   logger,
	}
}

// TriggerScrapeRequest asks for a scrape of one site or, with an empty site,
// of every site that is due.
type TriggerScrapeRequest struct {
	Site  string `json:"site"`
	Force bool   `json:"force"`
}

// TriggerScrapeResponse carries the handle for polling the background run.
type TriggerScrapeResponse struct {
	RunID   string `json:"run_id"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// TriggerScrape launches a scrape run and returns 202 immediately; the crawl
// itself happens in the background and is tracked by run ID.
func (h *Handlers) TriggerScrape(w http.ResponseWriter, r *http.Request) {
	req := TriggerScrapeRequest{}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	run := h.launcher.Start(strings.TrimSpace(req.Site), req.Force)
	h.logger.Info("scrape run triggered", "run_id", run.ID, "site", req.Site, "force", req.Force)

	h.respondJSON(w, http.StatusAccepted, TriggerScrapeResponse{
		RunID:   run.ID.String(),
		State:   string(run.State),
		Message: "scrape started",
	})
}

// GetScrapeRun reports the state of a previously triggered run.
func (h *Handlers) GetScrapeRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := h.launcher.Get(id)
	if errors.Is(err, orchestrator.ErrRunNotFound) {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load run", "run_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// ListSites returns every configured competitor site with its scheduling
// state.
func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.store.ListSites(r.Context())
	if err != nil {
		h.logger.Error("failed to list sites", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"sites": sites})
}

// ListProducts returns scraped products, filterable by site, category, sale
// and stock state, with substring search over name and description.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.ProductFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		OrderBy:  q.Get("ordering"),
	}
	if v := q.Get("site_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid site_id")
			return
		}
		filter.SiteID = id
	}
	if v := q.Get("on_sale"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid on_sale")
			return
		}
		filter.OnSale = &b
	}
	if v := q.Get("in_stock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid in_stock")
			return
		}
		filter.InStock = &b
	}
	filter.Limit = intParam(q.Get("limit"), 0)
	filter.Offset = intParam(q.Get("offset"), 0)

	products, err := h.store.ListProducts(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(products),
		"products": products,
	})
}

// maxHistoryRows caps the history endpoint regardless of the requested
// limit.
const maxHistoryRows = 30

// GetProductHistory returns the recorded price movements for one product,
// newest first, at most the 30 most recent rows.
func (h *Handlers) GetProductHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.store.GetProductByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "product_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	}

	limit := intParam(r.URL.Query().Get("limit"), 0)
	if limit <= 0 || limit > maxHistoryRows {
		limit = maxHistoryRows
	}

	history, err := h.store.ListPriceHistory(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list price history", "product_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list price history")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"product": product,
		"history": history,
	})
}

// ListScrapeLogs returns recent scrape runs, optionally for one site.
func (h *Handlers) ListScrapeLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var siteID int64
	if v := q.Get("site_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid site_id")
			return
		}
		siteID = id
	}

	logs, err := h.store.ListScrapeLogs(r.Context(), siteID, intParam(q.Get("limit"), 0))
	if err != nil {
		h.logger.Error("failed to list scrape logs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list scrape logs")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
