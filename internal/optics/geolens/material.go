package geolens

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Fraunhofer lines used to define nd and Vd, µm.
const (
	waveF = 0.4861
	waveD = 0.5876
	waveC = 0.6563
)

// Material is an optical medium described by its refractive index at the
// d-line and its Abbe number.
type Material struct {
	Name string
	N    float64 // nd
	V    float64 // Vd
}

// catalog lists the glasses materials are matched against.
var catalog = []Material{
	{Name: "N-BK7", N: 1.5168, V: 64.17},
	{Name: "N-K5", N: 1.5225, V: 59.48},
	{Name: "N-BAK4", N: 1.5688, V: 55.98},
	{Name: "N-SK16", N: 1.6204, V: 60.32},
	{Name: "N-LAK9", N: 1.6910, V: 54.71},
	{Name: "N-LASF9", N: 1.8503, V: 32.17},
	{Name: "N-F2", N: 1.6200, V: 36.43},
	{Name: "N-SF2", N: 1.6477, V: 33.82},
	{Name: "N-SF5", N: 1.6727, V: 32.25},
	{Name: "N-SF11", N: 1.7847, V: 25.68},
	{Name: "N-SF57", N: 1.8467, V: 23.78},
	{Name: "PMMA", N: 1.4918, V: 57.44},
	{Name: "POLYCARB", N: 1.5855, V: 29.91},
}

// Air returns the ambient medium.
func Air() *Material {
	return &Material{Name: "air", N: 1, V: math.Inf(1)}
}

// LookupMaterial returns a copy of a catalog glass or air.
func LookupMaterial(name string) (*Material, error) {
	if strings.EqualFold(name, "air") || name == "" {
		return Air(), nil
	}
	for _, m := range catalog {
		if strings.EqualFold(m.Name, name) {
			c := m
			return &c, nil
		}
	}
	return nil, fmt.Errorf("unknown material: %s", name)
}

// CatalogNames lists the catalog glasses in alphabetical order.
func CatalogNames() []string {
	names := make([]string, len(catalog))
	for i, m := range catalog {
		names[i] = m.Name
	}
	sort.Strings(names)
	return names
}

// IsAir reports whether the medium is air.
func (m *Material) IsAir() bool {
	return m.N == 1 && math.IsInf(m.V, 1)
}

// IOR returns the refractive index at wavelength wv (µm) using a two-term
// Cauchy fit through nd and the F-C dispersion implied by Vd.
func (m *Material) IOR(wv float64) float64 {
	if m.IsAir() {
		return 1
	}
	dn := (m.N - 1) / m.V // nF - nC
	b := dn / (1/(waveF*waveF) - 1/(waveC*waveC))
	a := m.N - b/(waveD*waveD)
	return a + b/(wv*wv)
}

// Nearest returns the catalog glass closest to m in (nd, Vd).
func (m *Material) Nearest() Material {
	best := catalog[0]
	bestDist := math.Inf(1)
	for _, g := range catalog {
		dn := (g.N - m.N) / 0.1
		dv := (g.V - m.V) / 10
		if d := dn*dn + dv*dv; d < bestDist {
			best, bestDist = g, d
		}
	}
	return best
}
