package discovery

import (
	"context"
	"log/slog"
	"sync"

	"oddcert/internal/boundary"
	"oddcert/pkg/domain"
)

// Registry holds one aggregator per application under observation.
// Aggregates live in memory only; a restart during observe starts the
// observation over.
type Registry struct {
	mu            sync.RWMutex
	aggregators   map[domain.ApplicationID]*Aggregator
	maxCategories int
	margin        float64
	logger        *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxCategories sets the distinct value cap per string parameter.
func WithMaxCategories(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxCategories = n
		}
	}
}

// WithSafetyMargin sets the default margin used by Propose.
func WithSafetyMargin(m float64) Option {
	return func(r *Registry) {
		if m >= 0 {
			r.margin = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		aggregators:   make(map[domain.ApplicationID]*Aggregator),
		maxCategories: DefaultMaxCategories,
		margin:        DefaultSafetyMargin,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins (or restarts) observation for an application.
func (r *Registry) Start(ctx context.Context, appID domain.ApplicationID) {
	r.mu.Lock()
	r.aggregators[appID] = NewAggregator(r.maxCategories)
	r.mu.Unlock()
	r.logger.InfoContext(ctx, "discovery started", "application_id", appID.String())
}

// Observe folds a sample into the application's aggregate. Samples for an
// application that is not under observation are ignored; ok reports
// whether the sample was used.
func (r *Registry) Observe(appID domain.ApplicationID, s boundary.Sample) (ok bool) {
	r.mu.RLock()
	agg, found := r.aggregators[appID]
	r.mu.RUnlock()
	if !found {
		return false
	}
	agg.Observe(s)
	return true
}

// Observing reports whether the application has an active aggregate.
func (r *Registry) Observing(appID domain.ApplicationID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.aggregators[appID]
	return ok
}

// Summary returns the application's aggregate, if any.
func (r *Registry) Summary(appID domain.ApplicationID) (Summary, bool) {
	r.mu.RLock()
	agg, ok := r.aggregators[appID]
	r.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}
	return agg.Summary(), true
}

// Propose builds an envelope proposal with the configured margin. An
// application that was never observed yields an empty envelope.
func (r *Registry) Propose(ctx context.Context, appID domain.ApplicationID) (*boundary.Envelope, error) {
	r.mu.RLock()
	agg, ok := r.aggregators[appID]
	r.mu.RUnlock()
	if !ok {
		return boundary.NewEnvelope(nil, boundary.DefaultFailPolicy())
	}
	env, err := agg.Propose(r.margin)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "discovery proposal built",
		"application_id", appID.String(),
		"boundaries", env.Len(),
		"margin", r.margin,
	)
	return env, nil
}

// Stop discards the application's aggregate.
func (r *Registry) Stop(appID domain.ApplicationID) {
	r.mu.Lock()
	delete(r.aggregators, appID)
	r.mu.Unlock()
}
