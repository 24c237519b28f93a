// Package registry holds the catalogue of retailers prices are fetched from.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"pricewatch-api/internal/models"
)

var (
	ErrDuplicateRetailer = errors.New("retailer already registered")
	ErrUnknownRetailer   = errors.New("unknown retailer")
)

type RetailerError struct {
	Name string
	Err  error
}

func (e *RetailerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *RetailerError) Unwrap() error { return e.Err }

// Registry maps retailer names to their configuration. It is filled at
// startup and only read afterwards.
type Registry struct {
	mu        sync.RWMutex
	retailers map[string]models.RetailerConfig
	order     []string
}

func New() *Registry {
	return &Registry{retailers: make(map[string]models.RetailerConfig)}
}

// Register validates cfg and adds it under its name.
func (r *Registry) Register(cfg models.RetailerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.retailers[cfg.Name]; exists {
		return &RetailerError{Name: cfg.Name, Err: ErrDuplicateRetailer}
	}
	r.retailers[cfg.Name] = cfg
	r.order = append(r.order, cfg.Name)
	return nil
}

func (r *Registry) Get(name string) (models.RetailerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.retailers[name]
	if !ok {
		return models.RetailerConfig{}, &RetailerError{Name: name, Err: ErrUnknownRetailer}
	}
	return cfg, nil
}

// List returns retailers in registration order. An empty country selects all.
func (r *Registry) List(country models.Country) []models.RetailerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RetailerConfig, 0, len(r.order))
	for _, name := range r.order {
		cfg := r.retailers[name]
		if country != "" && cfg.Country != country {
			continue
		}
		out = append(out, cfg)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
