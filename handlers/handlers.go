package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricetrack/logger"
	"pricetrack/models"
	"pricetrack/repository"
	"pricetrack/scraper"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

const defaultHistoryLimit = 50

// ProductStore persists tracked products and their price history.
type ProductStore interface {
	AddProduct(ctx context.Context, url string, snap *models.PriceSnapshot) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	GetProductByURL(ctx context.Context, url string) (*models.Product, error)
	RecordSnapshot(ctx context.Context, id int, snap *models.PriceSnapshot) (*models.Product, error)
	GetPriceHistory(ctx context.Context, productID, limit int) ([]models.PriceHistory, error)
	DeleteProduct(ctx context.Context, id int) error
}

// PriceExtractor extracts a price snapshot from a product page.
type PriceExtractor interface {
	ExtractPrice(ctx context.Context, url string) (*models.PriceSnapshot, error)
}

type Handlers struct {
	store     ProductStore
	extractor PriceExtractor
	validate  *validator.Validate
}

func NewHandlers(store ProductStore, extractor PriceExtractor) *Handlers {
	return &Handlers{
		store:     store,
		extractor: extractor,
		validate:  validator.New(),
	}
}

// Register mounts the API routes on r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products", h.AddProduct).Methods("POST")
	r.HandleFunc("/products/{id}", h.GetProduct).Methods("GET")
	r.HandleFunc("/products/{id}", h.DeleteProduct).Methods("DELETE")
	r.HandleFunc("/products/{id}/check-price", h.CheckPriceNow).Methods("POST")
	r.HandleFunc("/products/{id}/history", h.GetPriceHistory).Methods("GET")

	r.HandleFunc("/extract", h.Extract).Methods("POST")
}

// HealthCheck returns a simple health check response
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "pricetrack",
	}
	writeJSON(w, http.StatusOK, response)
}

// AddProduct extracts the current price of a product page and starts tracking it
func (h *Handlers) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req models.AddProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	url := strings.TrimSpace(req.URL)

	if _, err := h.store.GetProductByURL(r.Context(), url); err == nil {
		writeError(w, http.StatusConflict, "Product is already tracked")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Error("failed to look up product", "url", url, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add product")
		return
	}

	snap, err := h.extractor.ExtractPrice(r.Context(), url)
	if err != nil {
		writeExtractionError(w, err)
		return
	}

	product, err := h.store.AddProduct(r.Context(), url, snap)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Product is already tracked")
			return
		}
		logger.Error("failed to add product", "url", url, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add product")
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

// ListProducts returns every tracked product
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		logger.Error("failed to list products", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct returns a single tracked product
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "Failed to get product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProduct stops tracking a product
func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteProduct(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "Failed to delete product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
}

// GetPriceHistory returns the recorded prices of a product, newest first
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	// Get limit from query params
	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if _, err := h.store.GetProduct(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "Failed to get price history")
		return
	}

	history, err := h.store.GetPriceHistory(r.Context(), id, limit)
	if err != nil {
		logger.Error("failed to get price history", "product_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get price history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// CheckPriceNow extracts the current price of a tracked product and records it
func (h *Handlers) CheckPriceNow(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "Failed to get product")
		return
	}

	snap, err := h.extractor.ExtractPrice(r.Context(), product.URL)
	if err != nil {
		writeExtractionError(w, err)
		return
	}

	change := product.GetPriceChangeReason(snap.CurrentPrice)

	updated, err := h.store.RecordSnapshot(r.Context(), id, snap)
	if err != nil {
		h.writeStoreError(w, err, "Failed to update product price")
		return
	}

	logger.Info("price checked",
		"product_id", id,
		"price", snap.CurrentPrice.String(),
		"change", change,
	)

	writeJSON(w, http.StatusOK, models.CheckPriceResponse{
		ProductID:     updated.ID,
		Name:          updated.Name,
		NewPrice:      snap.CurrentPrice,
		OriginalPrice: snap.OriginalPrice,
		Currency:      snap.Currency,
		OnSale:        snap.OnSale,
		Change:        change,
		Warnings:      snap.Warnings,
	})
}

// Extract runs a one-off extraction without storing anything
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req models.ExtractRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.extractor.ExtractPrice(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		writeExtractionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "A valid url is required")
		return false
	}
	return true
}

func (h *Handlers) writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	logger.Error(strings.ToLower(message), "error", err)
	writeError(w, http.StatusInternalServerError, message)
}

func productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product ID")
		return 0, false
	}
	return id, true
}

// extractionStatus maps an extraction failure to an HTTP status.
func extractionStatus(kind scraper.Kind) int {
	switch kind {
	case scraper.KindInvalidURL, scraper.KindUnsupportedSite:
		return http.StatusBadRequest
	case scraper.KindTimeout:
		return http.StatusGatewayTimeout
	case scraper.KindUnreachable:
		return http.StatusBadGateway
	case scraper.KindBlockedOrChallenged:
		return http.StatusServiceUnavailable
	case scraper.KindNoPriceFound, scraper.KindImplausiblePrice:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeExtractionError(w http.ResponseWriter, err error) {
	var extractionErr *scraper.ExtractionError
	if !errors.As(err, &extractionErr) {
		logger.Error("extraction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to extract price")
		return
	}
	writeJSON(w, extractionStatus(extractionErr.Kind), extractionErr)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
