package dispatch

import (
	"fmt"
	"math/rand/v2"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/provider"
)

// Dispatcher resolves an endpoint call to an upstream request: it looks
// up the named model, gates on capability, picks an instance, and asks
// the matching provider adapter to build the request (spec §4.H).
type Dispatcher struct {
	registry  *Registry
	providers *provider.Registry
}

// New returns a Dispatcher serving models from registry through providers.
func New(registry *Registry, providers *provider.Registry) *Dispatcher {
	return &Dispatcher{registry: registry, providers: providers}
}

// Dispatch implements the algorithm of spec §4.H:
//  1. missing body["model"] -> ErrBadRequest
//  2. unknown model -> ErrModelNotFound
//  3. endpoint not in the model's capabilities -> ErrCapabilityGate
//  4. a uniformly random instance is selected (naive load balancing, no
//     affinity, health tracking, or retry)
//  5. the instance's provider adapter builds the upstream request
func (d *Dispatcher) Dispatch(endpoint llamaxing.Endpoint, body map[string]any) (llamaxing.UpstreamRequest, error) {
	modelID, _ := body["model"].(string)
	if modelID == "" {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("dispatch: %w: no model specified in request", llamaxing.ErrBadRequest)
	}

	model, ok := d.registry.Get(modelID)
	if !ok {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("dispatch: %w: %q", llamaxing.ErrModelNotFound, modelID)
	}

	if !model.HasCapability(endpoint) {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("dispatch: %w: model %q, endpoint %q", llamaxing.ErrCapabilityGate, modelID, endpoint)
	}

	instance := model.Instances[rand.N(len(model.Instances))]

	adapter, err := d.providers.Get(instance.Provider)
	if err != nil {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("dispatch: %w", err)
	}

	upstream, err := adapter.Build(endpoint, instance)
	if err != nil {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("dispatch: build upstream request: %w", err)
	}
	return upstream, nil
}

// Models returns every registered model descriptor (primary ids and
// aliases), for the /models listing (spec §6).
func (d *Dispatcher) Models() []*llamaxing.ModelDescriptor {
	return d.registry.List()
}
