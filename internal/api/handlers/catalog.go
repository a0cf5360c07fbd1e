// catalog.go — публичный каталог /api/v1/catalog (без аутентификации).
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danilomotos/moto-admin/internal/service"
)

// CatalogHandler — обработчик публичного каталога.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler создаёт обработчик каталога.
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("component", "catalog_handler")),
	}
}

type catalogItemResponse struct {
	motoResponse
	CoverURL      string   `json:"cover_url"`
	Photos        []string `json:"photos"`
	PriceLabel    string   `json:"price_label"`
	KmLabel       string   `json:"km_label,omitempty"`
	VideoEmbedURL string   `json:"video_embed_url,omitempty"`
}

type catalogListResponse struct {
	Status string                `json:"status"`
	Items  []catalogItemResponse `json:"items"`
	Total  int                   `json:"total"`
}

func toCatalogItemResponse(it service.CatalogItem) catalogItemResponse {
	return catalogItemResponse{
		motoResponse:  toMotoResponse(it.Moto),
		CoverURL:      it.CoverURL,
		Photos:        it.Photos,
		PriceLabel:    it.PriceLabel,
		KmLabel:       it.KmLabel,
		VideoEmbedURL: it.VideoEmbedURL,
	}
}

// ListCatalog — GET /api/v1/catalog?status=disponivel|reservada|vendida|all.
func (h *CatalogHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	status, err := service.ParseCatalogStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки каталога")
		return
	}

	items, err := h.catalog.List(r.Context(), status)
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки каталога")
		return
	}

	resp := catalogListResponse{
		Status: status,
		Items:  make([]catalogItemResponse, len(items)),
		Total:  len(items),
	}
	for i, it := range items {
		resp.Items[i] = toCatalogItemResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCatalogItem — GET /api/v1/catalog/{id}.
func (h *CatalogHandler) GetCatalogItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Ошибка загрузки записи каталога")
		return
	}
	writeJSON(w, http.StatusOK, toCatalogItemResponse(*item))
}
