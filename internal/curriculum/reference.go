package curriculum

import (
	"context"
	"fmt"

	"github.com/golang/geo/r2"

	"github.com/cwbudde/autolens/internal/optics"
)

// ReferencePoints estimates one sensor-plane target per field cell from the
// first sample of each cell and replicates it across the cell's samples.
// Centering on this point removes distortion from the error signal.
func ReferencePoints(ctx context.Context, s optics.Sampler, b *optics.Batch, method optics.CenterMethod) ([]r2.Point, error) {
	centers, err := s.PSFCenter(ctx, b.FirstSamples(), b.Wavelength, method)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate %s centers: %w", method, err)
	}
	if len(centers) != b.Cells() {
		return nil, fmt.Errorf("expected %d centers, got %d", b.Cells(), len(centers))
	}

	ref := make([]r2.Point, b.Len())
	for c, p := range centers {
		// PSF coordinates are mirrored relative to the sensor
		target := p.Mul(-1)
		for s := 0; s < b.SPP; s++ {
			ref[b.Index(c, s)] = target
		}
	}
	return ref, nil
}
