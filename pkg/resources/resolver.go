package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-resources/pkg/resources/metrics"
	"github.com/tendant/simple-resources/pkg/resources/objectkey"
	"golang.org/x/sync/errgroup"
)

// DefaultPrefixLimit bounds the fallback prefix search
const DefaultPrefixLimit = 5

// Resolver maps an opaque filename back to a durable asset when its kind is
// unknown. It only reads from the store.
type Resolver struct {
	store       DurableStore
	layout      objectkey.Layout
	logger      *slog.Logger
	metrics     *metrics.Recorder
	concurrent  bool
	prefixLimit int
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

func WithResolverNamespace(namespace string) ResolverOption {
	return func(r *Resolver) {
		r.layout = objectkey.NewLayout(namespace, "")
	}
}

func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithResolverMetrics(m *metrics.Recorder) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithConcurrentProbes issues the per-kind probes in parallel. Priority is
// unchanged: a document hit beats an image hit beats a video hit.
func WithConcurrentProbes() ResolverOption {
	return func(r *Resolver) {
		r.concurrent = true
	}
}

// WithPrefixLimit bounds each per-kind prefix listing. Non-positive values
// keep DefaultPrefixLimit.
func WithPrefixLimit(limit int) ResolverOption {
	return func(r *Resolver) {
		if limit > 0 {
			r.prefixLimit = limit
		}
	}
}

// NewResolver creates a resolver over store
func NewResolver(store DurableStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:       store,
		layout:      objectkey.NewLayout("", ""),
		logger:      slog.Default(),
		prefixLimit: DefaultPrefixLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// probe looks in one place and returns nil when nothing is there
type probe func(ctx context.Context) *Asset

// Resolve probes document, image and video in that order, then falls back to
// a bounded prefix search. It returns ErrNotFound when every probe misses.
// Probe failures count as misses.
func (r *Resolver) Resolve(ctx context.Context, filename string) (*Asset, error) {
	if r.store == nil {
		return nil, ErrStoreNotConfigured
	}
	canonical := objectkey.CanonicalKey(filename)
	if canonical == "" || canonical == "." || canonical == "/" {
		return nil, newValidationError("filename", ErrMissingField, "filename required")
	}
	publicID := r.layout.PublicID(canonical)
	format := objectkey.Format(filename)

	kindProbes := make([]probe, 0, len(ProbeOrder))
	for _, kind := range ProbeOrder {
		kindProbes = append(kindProbes, r.statProbe(ObjectRef{Kind: kind, PublicID: publicID, Format: format}))
	}

	var asset *Asset
	if r.concurrent {
		asset = runConcurrent(ctx, kindProbes)
	} else {
		asset = runOrdered(ctx, kindProbes)
	}
	if asset == nil {
		asset = r.prefixProbe(publicID)(ctx)
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}

	r.logger.Debug("Resolved filename", "filename", filename, "kind", asset.Kind, "url", asset.URL)
	return asset, nil
}

func runOrdered(ctx context.Context, probes []probe) *Asset {
	for _, p := range probes {
		if asset := p(ctx); asset != nil {
			return asset
		}
	}
	return nil
}

// runConcurrent runs every probe and picks the first hit by position, not by
// completion time.
func runConcurrent(ctx context.Context, probes []probe) *Asset {
	results := make([]*Asset, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			results[i] = p(gctx)
			return nil
		})
	}
	_ = g.Wait()
	for _, asset := range results {
		if asset != nil {
			return asset
		}
	}
	return nil
}

func (r *Resolver) statProbe(ref ObjectRef) probe {
	return func(ctx context.Context) *Asset {
		asset, err := r.store.Stat(ctx, ref)
		switch {
		case err == nil:
			r.metrics.Probe(string(ref.Kind), metrics.ProbeHit)
			return asset
		case errors.Is(err, ErrNotFound):
			r.metrics.Probe(string(ref.Kind), metrics.ProbeMiss)
		default:
			r.metrics.Probe(string(ref.Kind), metrics.ProbeError)
			r.logger.Warn("Resolver probe failed", "kind", ref.Kind, "public_id", ref.PublicID, "error", err)
		}
		return nil
	}
}

func (r *Resolver) prefixProbe(publicID string) probe {
	return func(ctx context.Context) *Asset {
		for _, kind := range ProbeOrder {
			assets, err := r.store.List(ctx, kind, publicID, r.prefixLimit)
			if err != nil {
				r.metrics.Probe("prefix", metrics.ProbeError)
				r.logger.Warn("Resolver prefix search failed", "kind", kind, "prefix", publicID, "error", err)
				continue
			}
			if len(assets) > 0 {
				r.metrics.Probe("prefix", metrics.ProbeHit)
				return assets[0]
			}
		}
		r.metrics.Probe("prefix", metrics.ProbeMiss)
		return nil
	}
}
