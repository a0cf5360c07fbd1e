// catalog.go — публичный каталог: фильтрация по статусу, сортировка,
// вычисление URL фотографий, меток цены и пробега.
//
// Результаты по статусу кэшируются в expirable LRU; любые изменения записей
// из админ-панели вызывают Invalidate.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danilomotos/moto-admin/internal/domain/formfmt"
	"github.com/danilomotos/moto-admin/internal/domain/model"
	"github.com/danilomotos/moto-admin/internal/domain/slots"
	"github.com/danilomotos/moto-admin/internal/repository"
)

// CatalogAll — фильтр каталога без ограничения по статусу.
const CatalogAll = "all"

// Метрики кэша каталога
var (
	catalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ma_catalog_cache_hits_total",
		Help: "Количество попаданий в кэш каталога.",
	})
	catalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ma_catalog_cache_misses_total",
		Help: "Количество промахов кэша каталога.",
	})
)

// MotoReader — чтение записей для каталога.
type MotoReader interface {
	List(ctx context.Context, status *model.Status) ([]*model.Moto, error)
	GetByID(ctx context.Context, id string) (*model.Moto, error)
}

// CatalogItem — запись каталога с вычисленными полями.
type CatalogItem struct {
	Moto *model.Moto
	// CoverURL — URL обложки с ?v=
	CoverURL string
	// Photos — обложка, затем 1..4; для проданных — только обложка
	Photos []string
	// PriceLabel — «R$ 45.900», «Vendido», «Reservado» или «Consultar»
	PriceLabel string
	// KmLabel — «12.000» (пусто, если пробег не указан)
	KmLabel string
	// VideoEmbedURL — ссылка для встраивания YouTube (пусто, если видео нет)
	VideoEmbedURL string
}

// CatalogService — публичный каталог с кэшем по статусу.
type CatalogService struct {
	repo   MotoReader
	base   string
	cache  *expirable.LRU[string, []CatalogItem]
	logger *slog.Logger
}

// NewCatalogService создаёт сервис каталога.
// ttl — время жизни закэшированного списка (0 — без истечения).
func NewCatalogService(repo MotoReader, assetBase string, ttl time.Duration, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		base:   assetBase,
		cache:  expirable.NewLRU[string, []CatalogItem](8, nil, ttl),
		logger: logger.With(slog.String("component", "catalog")),
	}
}

// ParseCatalogStatus разбирает фильтр статуса (пусто — disponivel).
func ParseCatalogStatus(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return string(model.StatusAvailable), nil
	}
	if v == CatalogAll || model.Status(v).Valid() {
		return v, nil
	}
	return "", fmt.Errorf("%w: недопустимый статус %q", ErrValidation, v)
}

// List возвращает записи каталога для фильтра filter (статус или «all»).
func (s *CatalogService) List(ctx context.Context, filter string) ([]CatalogItem, error) {
	filter, err := ParseCatalogStatus(filter)
	if err != nil {
		return nil, err
	}
	if items, ok := s.cache.Get(filter); ok {
		catalogCacheHitsTotal.Inc()
		return items, nil
	}
	catalogCacheMissesTotal.Inc()

	var status *model.Status
	if filter != CatalogAll {
		st := model.Status(filter)
		status = &st
	}

	motos, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("загрузка каталога: %w", err)
	}

	SortCatalog(motos)
	items := make([]CatalogItem, len(motos))
	for i, m := range motos {
		items[i] = s.item(m)
	}

	s.cache.Add(filter, items)
	s.logger.Debug("Каталог загружен",
		slog.String("status", filter),
		slog.Int("count", len(items)),
	)
	return items, nil
}

// Get возвращает одну запись каталога.
func (s *CatalogService) Get(ctx context.Context, id string) (*CatalogItem, error) {
	id = formfmt.CleanID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: не указан ID", ErrValidation)
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: запись %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("загрузка записи каталога: %w", err)
	}
	item := s.item(m)
	return &item, nil
}

// Invalidate сбрасывает кэш каталога.
func (s *CatalogService) Invalidate() {
	s.cache.Purge()
}

// SortCatalog упорядочивает записи: ordem asc (без значения — 999),
// затем ano desc, затем km asc (числовое сравнение).
func SortCatalog(motos []*model.Moto) {
	slices.SortStableFunc(motos, func(a, b *model.Moto) int {
		if c := cmp.Compare(a.OrdemOrDefault(), b.OrdemOrDefault()); c != 0 {
			return c
		}
		if c := cmp.Compare(formfmt.Num(b.Ano), formfmt.Num(a.Ano)); c != 0 {
			return c
		}
		return cmp.Compare(formfmt.Num(a.Km), formfmt.Num(b.Km))
	})
}

// PriceLabel возвращает метку цены записи.
func PriceLabel(m *model.Moto) string {
	switch m.Status {
	case model.StatusSold:
		return "Vendido"
	case model.StatusReserved:
		return "Reservado"
	}
	if label := formfmt.BRL(m.Preco); label != "" {
		return label
	}
	return "Consultar"
}

func (s *CatalogService) item(m *model.Moto) CatalogItem {
	token := m.VersionToken()
	all := slots.For(m.ID)

	n := len(all)
	if m.Status == model.StatusSold {
		n = 1
	}
	photos := make([]string, n)
	for i := range n {
		photos[i] = slots.PublicURL(s.base, all[i].Path, token)
	}

	return CatalogItem{
		Moto:          m,
		CoverURL:      photos[0],
		Photos:        photos,
		PriceLabel:    PriceLabel(m),
		KmLabel:       formfmt.Km(m.Km),
		VideoEmbedURL: formfmt.YouTubeEmbed(m.Youtube),
	}
}
