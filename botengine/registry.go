package botengine

import (
	"fmt"
	"sort"
	"sync"

	domainBot "github.com/AzielCF/az-wabot/domains/bot"
)

// Registry holds the bot types known to the process. Types are registered
// at startup; lookups afterwards are read-only.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Bot
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Bot)}
}

func (r *Registry) Register(b Bot) error {
	key := b.Info().TypeKey
	if key == "" {
		return fmt.Errorf("bot type has empty type key")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[key]; exists {
		return fmt.Errorf("bot type %q already registered", key)
	}
	r.types[key] = b
	return nil
}

func (r *Registry) Get(typeKey string) (Bot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.types[typeKey]
	return b, ok
}

// List returns type infos sorted by type key.
func (r *Registry) List() []domainBot.TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]domainBot.TypeInfo, 0, len(r.types))
	for _, b := range r.types {
		infos = append(infos, b.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].TypeKey < infos[j].TypeKey })
	return infos
}
