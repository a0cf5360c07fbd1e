package admin

import (
	"sync"

	"github.com/danilomotos/moto-admin/internal/domain/model"
)

// RecordCache — кэш всех записей для админ-панели.
// Заполняется только через Replace (после загрузки), сбрасывается явно
// после сохранения и удаления.
type RecordCache struct {
	mu     sync.RWMutex
	loaded bool
	order  []*model.Moto
	byID   map[string]*model.Moto
}

// NewRecordCache создаёт пустой кэш.
func NewRecordCache() *RecordCache {
	return &RecordCache{byID: map[string]*model.Moto{}}
}

// Replace заменяет содержимое кэша списком записей (порядок сохраняется).
func (c *RecordCache) Replace(motos []*model.Moto) {
	order := make([]*model.Moto, len(motos))
	byID := make(map[string]*model.Moto, len(motos))
	for i, m := range motos {
		cp := *m
		order[i] = &cp
		byID[cp.ID] = &cp
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = order
	c.byID = byID
	c.loaded = true
}

// Invalidate помечает кэш устаревшим.
func (c *RecordCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.order = nil
	c.byID = map[string]*model.Moto{}
}

// Loaded сообщает, заполнен ли кэш.
func (c *RecordCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Get возвращает копию записи по ID.
func (c *RecordCache) Get(id string) (*model.Moto, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// All возвращает копии всех записей в порядке загрузки.
func (c *RecordCache) All() []*model.Moto {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]*model.Moto, len(c.order))
	for i, m := range c.order {
		cp := *m
		result[i] = &cp
	}
	return result
}
