package transcription

import (
	"errors"
	"fmt"
)

// ErrUnknownModel is returned when a model name has no registry entry.
// The lookup happens before any network I/O.
var ErrUnknownModel = errors.New("unknown model")

// ModelInfo identifies a vendor model and the account/app it lives under.
type ModelInfo struct {
	Name         string `json:"name"`
	ModelID      string `json:"model_id"`
	UserID       string `json:"user_id"`
	AppID        string `json:"app_id"`
	DeploymentID string `json:"deployment_id,omitempty"`
	Description  string `json:"description"`
}

// Registry maps model display names to their vendor identifiers. The
// registry is built once at startup and never mutated.
type Registry struct {
	models map[string]ModelInfo
	order  []string
}

// NewRegistry builds a registry from a model list.
func NewRegistry(models []ModelInfo) (*Registry, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("model registry cannot be empty")
	}

	r := &Registry{
		models: make(map[string]ModelInfo, len(models)),
		order:  make([]string, 0, len(models)),
	}

	for _, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("model name cannot be empty")
		}
		if m.ModelID == "" {
			return nil, fmt.Errorf("model '%s': model_id cannot be empty", m.Name)
		}
		if _, exists := r.models[m.Name]; exists {
			return nil, fmt.Errorf("duplicate model name '%s'", m.Name)
		}

		r.models[m.Name] = m
		r.order = append(r.order, m.Name)
	}

	return r, nil
}

// Lookup resolves a model display name. Unknown names fail fast so the
// caller never spends a network round trip on them.
func (r *Registry) Lookup(name string) (ModelInfo, error) {
	model, ok := r.models[name]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: '%s'", ErrUnknownModel, name)
	}
	return model, nil
}

// List returns all models in registration order.
func (r *Registry) List() []ModelInfo {
	models := make([]ModelInfo, 0, len(r.order))
	for _, name := range r.order {
		models = append(models, r.models[name])
	}
	return models
}

// Contains reports whether a model name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.models[name]
	return ok
}
