package providers

import (
	"fmt"

	"electroshop_backend/internal/models"
)

// Registry - адаптеры по методу оплаты. Заполняется при старте, дальше только читается.
type Registry struct {
	adapters map[models.PaymentMethod]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.PaymentMethod]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Method()] = a
}

func (r *Registry) Get(method models.PaymentMethod) (Adapter, error) {
	if a, ok := r.adapters[method]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
}
