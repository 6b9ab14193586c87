package router

import (
	"context"
	"fmt"

	"github.com/cadencevoice/cadence/pkg/llm"
)

// AdapterPack names one registered backend.
type AdapterPack struct {
	Name    string
	Adapter llm.Adapter
}

// Mux routes completion requests to a named backend, falling back to the
// default when the request doesn't pin one.
type Mux struct {
	adapters    map[string]AdapterPack
	defaultName string
}

func New(defaultName string, packs ...AdapterPack) (*Mux, error) {
	if len(packs) == 0 {
		return nil, fmt.Errorf("mux needs at least one adapter")
	}
	adm := make(map[string]AdapterPack, len(packs))
	for _, p := range packs {
		adm[p.Name] = p
	}
	if _, ok := adm[defaultName]; !ok {
		return nil, fmt.Errorf("default adapter %q not registered", defaultName)
	}
	return &Mux{adapters: adm, defaultName: defaultName}, nil
}

// Complete implements llm.Adapter so callers can hold the mux behind the
// same interface as a single backend.
func (m *Mux) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	name := m.defaultName
	if req.Model.Name != "" {
		if _, ok := m.adapters[req.Model.Name]; ok {
			name = req.Model.Name
		}
	}
	return m.adapters[name].Adapter.Complete(ctx, req)
}
