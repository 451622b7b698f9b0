package geolens

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/autolens/internal/store"
)

type lensFile struct {
	Info     string        `json:"info"`
	FocLen   float64       `json:"foclen"`
	FNum     float64       `json:"fnum"`
	HFOV     float64       `json:"hfov"`
	RSensor  float64       `json:"r_sensor"`
	DSensor  float64       `json:"d_sensor"`
	Flange   float64       `json:"flange"`
	Surfaces []surfaceFile `json:"surfaces"`
}

type surfaceFile struct {
	Type SurfaceType  `json:"type"`
	D    float64      `json:"d"`
	R    float64      `json:"r"`
	C    float64      `json:"c,omitempty"`
	K    float64      `json:"k,omitempty"`
	Ai   []float64    `json:"ai,omitempty"`
	Mat2 materialFile `json:"mat2"`
}

// Air has an infinite Abbe number, which JSON cannot hold, so it is stored by
// name only.
type materialFile struct {
	Name string  `json:"name"`
	N    float64 `json:"n,omitempty"`
	V    float64 `json:"v,omitempty"`
}

// WriteLensJSON atomically writes the lens prescription to path.
func (l *Lens) WriteLensJSON(path string) error {
	f := lensFile{
		Info:    fmt.Sprintf("%d surfaces, f=%.3gmm, F/%.3g", len(l.Surfaces), l.FocLen, l.FNum),
		FocLen:  l.FocLen,
		FNum:    l.FNum,
		HFOV:    l.HFOV,
		RSensor: l.RSensor,
		DSensor: l.DSensor,
		Flange:  l.Flange,
	}
	for _, s := range l.Surfaces {
		sf := surfaceFile{Type: s.Type, D: s.D, R: s.R, C: s.C, K: s.K, Ai: s.Ai}
		if s.Mat2.IsAir() {
			sf.Mat2 = materialFile{Name: "air"}
		} else {
			sf.Mat2 = materialFile{Name: s.Mat2.Name, N: s.Mat2.N, V: s.Mat2.V}
		}
		f.Surfaces = append(f.Surfaces, sf)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize lens: %w", err)
	}
	if err := store.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write lens file: %w", err)
	}
	return nil
}

// LoadJSON reads a lens written by WriteLensJSON. Materials stored by name
// only are resolved from the catalog.
func LoadJSON(path string, seed int64) (*Lens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lens file: %w", err)
	}
	var f lensFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lens file: %w", err)
	}
	if f.FocLen <= 0 || f.HFOV <= 0 || f.HFOV >= math.Pi/2 {
		return nil, fmt.Errorf("lens file %s: invalid foclen %g or hfov %g", path, f.FocLen, f.HFOV)
	}

	l := &Lens{
		AperIdx: -1,
		DSensor: f.DSensor,
		RSensor: f.RSensor,
		HFOV:    f.HFOV,
		FocLen:  f.FocLen,
		FNum:    f.FNum,
		Flange:  f.Flange,
	}
	for i, sf := range f.Surfaces {
		typ, err := ParseSurfaceType(string(sf.Type))
		if err != nil {
			return nil, fmt.Errorf("surface %d: %w", i, err)
		}
		s := &Surface{Type: typ, D: sf.D, R: sf.R, C: sf.C, K: sf.K, Ai: sf.Ai}
		if typ == Aperture {
			if l.AperIdx >= 0 {
				return nil, fmt.Errorf("lens file %s: more than one aperture", path)
			}
			l.AperIdx = i
		}
		if sf.Mat2.N > 0 && sf.Mat2.V > 0 {
			s.Mat2 = &Material{Name: sf.Mat2.Name, N: sf.Mat2.N, V: sf.Mat2.V}
		} else {
			m, err := LookupMaterial(sf.Mat2.Name)
			if err != nil {
				return nil, fmt.Errorf("surface %d: %w", i, err)
			}
			s.Mat2 = m
		}
		l.Surfaces = append(l.Surfaces, s)
	}
	if l.AperIdx < 0 {
		return nil, ErrNoAperture
	}
	if l.RSensor <= 0 {
		l.RSensor = l.FocLen * math.Tan(l.HFOV)
	}
	if l.FNum <= 0 {
		l.FNum = l.FocLen / l.ApertureRadius() / 2
	}
	l.SetSeed(seed)
	return l, nil
}
