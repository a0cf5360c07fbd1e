package admin

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultRegistrySize — максимальное число одновременных сессий редактирования.
const DefaultRegistrySize = 256

// Registry хранит по одному Controller на сессию UI.
// Контроллеры неактивных сессий вытесняются по TTL.
type Registry struct {
	mu      sync.Mutex
	lru     *expirable.LRU[string, *Controller]
	factory func() *Controller
}

// NewRegistry создаёт реестр контроллеров.
// factory создаёт контроллер для новой сессии.
func NewRegistry(size int, ttl time.Duration, factory func() *Controller) *Registry {
	if size < 1 {
		size = DefaultRegistrySize
	}
	return &Registry{
		lru:     expirable.NewLRU[string, *Controller](size, nil, ttl),
		factory: factory,
	}
}

// Get возвращает контроллер сессии, создавая его при первом обращении.
func (r *Registry) Get(sessionID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.lru.Get(sessionID); ok {
		return c
	}
	c := r.factory()
	r.lru.Add(sessionID, c)
	return c
}

// Remove удаляет контроллер сессии (выход из системы).
func (r *Registry) Remove(sessionID string) {
	r.lru.Remove(sessionID)
}

// InvalidateAll сбрасывает кэши записей всех сессий.
// Вызывается после изменений, сделанных в любой сессии.
func (r *Registry) InvalidateAll() {
	for _, c := range r.lru.Values() {
		c.Cache().Invalidate()
	}
}

// Len возвращает число активных сессий.
func (r *Registry) Len() int {
	return r.lru.Len()
}
