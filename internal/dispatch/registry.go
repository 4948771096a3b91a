// Package dispatch implements the model registry and dispatcher (spec
// §4.H): loading models.json, selecting an instance uniformly at random,
// and resolving it to an upstream request via the provider adapters.
package dispatch

import (
	"encoding/json"
	"fmt"
	"os"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/config"
)

// modelRecord is the on-disk shape of one entry in models.json (spec §3,
// §6 "Model registry file").
type modelRecord struct {
	ID           string          `json:"id"`
	Capabilities []string        `json:"capabilities"`
	Instances    []instanceRecord `json:"instances"`
	Aliases      []string        `json:"aliases"`
}

// instanceRecord is the on-disk shape of one InstanceDescriptor entry.
// Which fields are populated is determined by Provider.
type instanceRecord struct {
	Provider string `json:"provider"`

	// openai / ollama
	OpenAIAPIKey       string `json:"openai_api_key"`
	OpenAIOrganization string `json:"openai_organization"`
	BaseURL            string `json:"base_url"`

	// azure
	AzureEndpoint   string `json:"azure_endpoint"`
	AzureDeployment string `json:"azure_deployment"`
	AzureAPIVersion string `json:"azure_api_version"`
	AzureAPIKey     string `json:"azure_api_key"`
}

func (r instanceRecord) toDescriptor() llamaxing.InstanceDescriptor {
	return llamaxing.InstanceDescriptor{
		Provider:        r.Provider,
		APIKey:          config.ExpandString(r.OpenAIAPIKey),
		Organization:    config.ExpandString(r.OpenAIOrganization),
		BaseURL:         config.ExpandString(r.BaseURL),
		AzureEndpoint:   config.ExpandString(r.AzureEndpoint),
		AzureDeployment: config.ExpandString(r.AzureDeployment),
		AzureAPIVersion: config.ExpandString(r.AzureAPIVersion),
		AzureAPIKey:     config.ExpandString(r.AzureAPIKey),
	}
}

var endpointTags = map[string]llamaxing.Endpoint{
	"chat_completions":   llamaxing.EndpointChatCompletions,
	"completions":        llamaxing.EndpointCompletions,
	"embeddings":         llamaxing.EndpointEmbeddings,
	"images_generations": llamaxing.EndpointImagesGeneration,
}

func (r modelRecord) toDescriptor() (*llamaxing.ModelDescriptor, error) {
	caps := make(map[llamaxing.Endpoint]struct{}, len(r.Capabilities))
	for _, c := range r.Capabilities {
		tag, ok := endpointTags[c]
		if !ok {
			return nil, fmt.Errorf("dispatch: model %q: unknown capability %q", r.ID, c)
		}
		caps[tag] = struct{}{}
	}
	instances := make([]llamaxing.InstanceDescriptor, len(r.Instances))
	for i, inst := range r.Instances {
		instances[i] = inst.toDescriptor()
	}
	return &llamaxing.ModelDescriptor{
		ID:           r.ID,
		Capabilities: caps,
		Instances:    instances,
		Aliases:      r.Aliases,
	}, nil
}

// Registry is the read-only, post-load model table: the primary id plus
// one entry per alias, each a shallow copy with id replaced (spec §3).
type Registry struct {
	models map[string]*llamaxing.ModelDescriptor
	order  []string // insertion order, for a stable /models listing
}

// LoadRegistry reads and parses the model registry document at path.
// Environment-variable references in instance fields are expanded at
// load time (spec §3). Returns an error if any id or alias collides with
// one already registered.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dispatch: read %s: %w", path, err)
	}
	var records []modelRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("dispatch: parse %s: %w", path, err)
	}

	reg := &Registry{models: make(map[string]*llamaxing.ModelDescriptor, len(records))}
	for _, rec := range records {
		desc, err := rec.toDescriptor()
		if err != nil {
			return nil, err
		}
		if err := reg.add(rec.ID, desc); err != nil {
			return nil, err
		}
		for _, alias := range rec.Aliases {
			aliasDesc := *desc
			aliasDesc.ID = alias
			if err := reg.add(alias, &aliasDesc); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func (r *Registry) add(id string, desc *llamaxing.ModelDescriptor) error {
	if _, exists := r.models[id]; exists {
		return fmt.Errorf("dispatch: duplicate model id or alias %q", id)
	}
	r.models[id] = desc
	r.order = append(r.order, id)
	return nil
}

// Get returns the model descriptor for id, or ok=false if none matches.
func (r *Registry) Get(id string) (*llamaxing.ModelDescriptor, bool) {
	desc, ok := r.models[id]
	return desc, ok
}

// List returns every registered descriptor (primary ids and aliases
// alike) in load order.
func (r *Registry) List() []*llamaxing.ModelDescriptor {
	out := make([]*llamaxing.ModelDescriptor, len(r.order))
	for i, id := range r.order {
		out[i] = r.models[id]
	}
	return out
}
