package services

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/oauth2"
)

// Deps carries what a [Factory] may need to build a client.
type Deps struct {
	Config          *shared.Config
	HTTPClient      *http.Client
	Logger          *log.Logger
	MatchPercentage int

	// OnToken, when set, receives refreshed OAuth tokens of service so they can be persisted.
	OnToken func(service string, tok *oauth2.Token)
}

func (d Deps) withDefaults() Deps {
	if d.Config == nil {
		d.Config = shared.DefaultConfig()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: d.Config.Client.Timeout}
	}
	if d.Logger == nil {
		d.Logger = shared.NewLogger(nil)
	}
	if d.MatchPercentage <= 0 {
		d.MatchPercentage = d.Config.Sync.MatchPercentage
	}
	if d.MatchPercentage <= 0 {
		d.MatchPercentage = 90
	}
	return d
}

// Factory builds a [Client] for account. An empty account falls back to the configured one.
type Factory func(account string, deps Deps) (Client, error)

// Registry maps service names to client factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry registers every supported backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(models.ServiceSubsonic, NewSubsonicFactory(false))
	r.Register(models.ServiceNavidrome, NewSubsonicFactory(true))
	r.Register(models.ServicePlex, NewPlexFactory())
	r.Register(models.ServiceJellyfin, NewJellyfinFactory())
	r.Register(models.ServiceSpotify, NewSpotifyFactory())
	r.Register(models.ServiceTidal, NewTidalFactory())
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Names lists the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Client builds the client registered for name.
func (r *Registry) Client(name, account string, deps Deps) (Client, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", shared.ErrUnknownService, name, strings.Join(r.Names(), ", "))
	}

	return f(account, deps.withDefaults())
}

// Provider builds a [SnapshotProvider] reading from store and writing through the client registered for name.
func (r *Registry) Provider(name, account string, store repositories.SnapshotReader, deps Deps) (Provider, error) {
	deps = deps.withDefaults()
	client, err := r.Client(name, account, deps)
	if err != nil {
		return nil, err
	}
	return NewSnapshotProvider(client, store, deps.Logger), nil
}
