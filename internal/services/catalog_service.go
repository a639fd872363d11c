package services

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agrisubsidy/backend/internal/models"
)

// CatalogService serves the read-only product catalog. No mutation is
// exposed to merchants; stock only changes through purchases.
type CatalogService struct {
	db *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db}
}

// ListProducts lists the purchasable catalog
// @Summary List products
// @Description Get all products with price, subsidy percentage and available quantity
// @Tags products
// @Produce json
// @Success 200 {array} models.Product
// @Failure 401 {object} ErrorResponse "No session"
// @Router /products [get]
func (s *CatalogService) ListProducts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, name, price, subsidy_percent, quantity, created_at
		FROM products
		ORDER BY created_at DESC
	`)
	if err != nil {
		HandleServiceError(w, "CATALOG", err)
		return
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.SubsidyPercent, &p.Quantity, &p.CreatedAt); err != nil {
			HandleServiceError(w, "CATALOG", err)
			return
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		HandleServiceError(w, "CATALOG", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

// GetProduct fetches a single catalog entry
// @Summary Get product by ID
// @Description Retrieve one product from the catalog
// @Tags products
// @Produce json
// @Param productId path string true "Product ID"
// @Success 200 {object} models.Product
// @Failure 404 {object} ErrorResponse "Unknown product"
// @Router /products/{productId} [get]
func (s *CatalogService) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var p models.Product
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, name, price, subsidy_percent, quantity, created_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.Price, &p.SubsidyPercent, &p.Quantity, &p.CreatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Product not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		HandleServiceError(w, "CATALOG", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}
