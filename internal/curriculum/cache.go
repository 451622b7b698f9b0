package curriculum

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/golang/geo/r2"

	"github.com/cwbudde/autolens/internal/optics"
)

// RayCache holds one ray batch per wavelength together with the broadcast
// reference points. Batches are reused verbatim for every step until the
// next Refresh; callers must clone before tracing.
type RayCache struct {
	sampler optics.Sampler
	spec    optics.SampleSpec
	waves   []float64
	method  optics.CenterMethod

	batches []*optics.Batch
	ref     []r2.Point
	draws   int
}

// NewRayCache creates an empty cache. Refresh must be called before use.
func NewRayCache(sampler optics.Sampler, cfg Config) *RayCache {
	return &RayCache{
		sampler: sampler,
		spec: optics.SampleSpec{
			Depth:              cfg.Depth,
			NumRays:            cfg.SPP,
			NumGrid:            cfg.NumGrid,
			ImportanceSampling: cfg.ImportanceSampling,
		},
		waves:  cfg.Wavelengths,
		method: cfg.CenterMethod,
	}
}

// Refresh draws a new batch for every wavelength and recomputes the reference
// points from the last drawn batch.
func (c *RayCache) Refresh(ctx context.Context) error {
	batches := make([]*optics.Batch, len(c.waves))
	for j, wv := range c.waves {
		spec := c.spec
		spec.Wavelength = wv
		b, err := c.sampler.SamplePointSource(ctx, spec)
		if err != nil {
			return fmt.Errorf("failed to sample rays at %.3fum: %w", wv, err)
		}
		batches[j] = b
	}

	ref, err := ReferencePoints(ctx, c.sampler, batches[len(batches)-1], c.method)
	if err != nil {
		return err
	}

	c.batches = batches
	c.ref = ref
	c.draws++

	slog.Debug("Rays resampled",
		"draw", c.draws,
		"method", string(c.method),
		"pinhole_scale", c.sampler.CalcScalePinhole(c.spec.Depth),
	)
	return nil
}

// Batch returns the cached batch of wavelength j.
func (c *RayCache) Batch(j int) *optics.Batch {
	return c.batches[j]
}

// Reference returns the broadcast reference points shared by all wavelengths.
func (c *RayCache) Reference() []r2.Point {
	return c.ref
}

// Draws returns how many times the cache has been refreshed.
func (c *RayCache) Draws() int {
	return c.draws
}
