package tasktype

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр типов задач.
//
// Позволяет регистрировать и получать Definition по имени типа.
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Definition
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*Definition),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными типами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Регистрируем все стандартные типы
	r.Register(NewInference())
	r.Register(NewSleep())
	r.Register(NewEcho())

	return r
}

// Register регистрирует тип в реестре.
// Если тип с таким именем уже существует, он будет перезаписан.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[def.Name] = def
}

// Get возвращает определение типа по имени.
// Возвращает ErrTypeNotFound, если тип не зарегистрирован.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.types[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}

	return def, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.types[name]
	return exists
}

// Types возвращает список всех зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.types, name)
}
