package geolens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"slices"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/autolens/internal/optics"
	"github.com/cwbudde/autolens/internal/store"
)

// Analysis settings. Fields are fractions of the half diagonal.
var analysisFields = []float64{0, 0.7, 1}

const (
	analysisSPP  = 256
	analysisSeed = 1
	panelSize    = 256
)

// SpotReport is the RMS spot size of one field at one wavelength.
type SpotReport struct {
	Wavelength float64 `json:"wavelength"`
	Field      float64 `json:"field"`
	RMS        float64 `json:"rms"`
	Valid      float64 `json:"valid_fraction"`
}

// Report summarizes the image quality of a lens.
type Report struct {
	FocLen float64      `json:"foclen"`
	EFL    float64      `json:"efl"`
	FNum   float64      `json:"fnum"`
	HFOV   float64      `json:"hfov"`
	AvgRMS float64      `json:"avg_rms"`
	Spots  []SpotReport `json:"spots"`
}

type spotSet struct {
	wavelength float64
	field      float64
	xy         []r2.Point
	valid      []float64
	centroid   r2.Point
}

// Analysis evaluates RMS spot sizes for the RGB lines over the field and
// writes <prefix>_rms.json, the spot diagram <prefix>.png and, if requested,
// a Zemax-style prescription <prefix>.zmx. With MultiPlot one diagram per
// wavelength is written as <prefix>_<nm>nm.png instead.
func (l *Lens) Analysis(ctx context.Context, prefix string, opts optics.AnalysisOptions) error {
	rng := rand.New(rand.NewSource(analysisSeed))

	report := Report{FocLen: l.FocLen, EFL: l.EffectiveFocalLength(), FNum: l.FNum, HFOV: l.HFOV}
	var spots []spotSet
	var rmsSum float64
	for _, wv := range optics.WaveRGB {
		iors := l.iors(wv)
		pupil := l.entrancePupil(optics.DefaultDepth, iors)
		for _, f := range analysisFields {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := optics.NewBatch(1, analysisSPP, wv)
			p := l.objectPoint(f, f, optics.DefaultDepth)
			l.fillCell(b, 0, p, pupil, iors, rng)
			if _, err := l.Trace(ctx, b); err != nil {
				return fmt.Errorf("failed to trace analysis rays: %w", err)
			}

			set := spotSet{wavelength: wv, field: f, xy: projectAll(b, l.DSensor), valid: b.Valid}
			rms := math.NaN()
			if b.ValidCount(0) > 0 {
				set.centroid = centroid(set.xy, set.valid)
				rms = spotRMS(set.xy, set.valid, set.centroid)
				rmsSum += rms
			}
			spots = append(spots, set)
			report.Spots = append(report.Spots, SpotReport{
				Wavelength: wv,
				Field:      f,
				RMS:        rms,
				Valid:      b.ValidCount(0) / float64(b.SPP),
			})
		}
	}
	report.AvgRMS = rmsSum / float64(len(report.Spots))

	if err := writeReport(prefix+"_rms.json", report); err != nil {
		return err
	}

	if opts.MultiPlot {
		for _, wv := range optics.WaveRGB {
			var sub []spotSet
			for _, s := range spots {
				if s.wavelength == wv {
					sub = append(sub, s)
				}
			}
			path := fmt.Sprintf("%s_%dnm.png", prefix, int(math.Round(wv*1000)))
			if err := writeSpotDiagram(path, sub, opts.PlotInvalid); err != nil {
				return err
			}
		}
	} else if err := writeSpotDiagram(prefix+".png", spots, opts.PlotInvalid); err != nil {
		return err
	}

	if opts.ZmxFormat {
		if err := store.WriteFileAtomic(prefix+".zmx", l.zmx()); err != nil {
			return fmt.Errorf("failed to write prescription: %w", err)
		}
	}
	return nil
}

// writeReport encodes the report, replacing undefined spot sizes with -1.
func writeReport(path string, r Report) error {
	for i := range r.Spots {
		if math.IsNaN(r.Spots[i].RMS) {
			r.Spots[i].RMS = -1
		}
	}
	if math.IsNaN(r.AvgRMS) || math.IsInf(r.AvgRMS, 0) {
		r.AvgRMS = -1
	}
	if math.IsInf(r.EFL, 0) || math.IsNaN(r.EFL) {
		r.EFL = 0
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize analysis: %w", err)
	}
	if err := store.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write analysis: %w", err)
	}
	return nil
}

// projectAll propagates every ray to the plane z, including vignetted ones
// from where they stopped. Rays that cannot reach the plane land at the origin.
func projectAll(b *optics.Batch, z float64) []r2.Point {
	xy := make([]r2.Point, b.Len())
	for i := range xy {
		if b.D[i].Z <= 0 {
			continue
		}
		t := (z - b.O[i].Z) / b.D[i].Z
		xy[i] = r2.Point{X: b.O[i].X + t*b.D[i].X, Y: b.O[i].Y + t*b.D[i].Y}
	}
	return xy
}

func centroid(xy []r2.Point, valid []float64) r2.Point {
	xs := make([]float64, len(xy))
	ys := make([]float64, len(xy))
	for i, p := range xy {
		xs[i], ys[i] = p.X, p.Y
	}
	return r2.Point{X: stat.Mean(xs, valid), Y: stat.Mean(ys, valid)}
}

// EffectiveFocalLength traces a paraxial marginal ray at the design
// wavelength. It returns +Inf for an afocal system and NaN if the ray fails.
func (l *Lens) EffectiveFocalLength() float64 {
	h := 1e-3 * l.ApertureRadius()
	o := r3.Vector{X: h, Z: l.Surfaces[0].D - 1}
	_, d, ok := l.traceRay(o, r3.Vector{Z: 1}, l.iors(optics.WaveGreen), len(l.Surfaces), false)
	if !ok {
		return math.NaN()
	}
	if d.X == 0 {
		return math.Inf(1)
	}
	return -h * d.Z / d.X
}

var waveColors = map[float64]color.NRGBA{
	optics.WaveRed:   {220, 30, 30, 255},
	optics.WaveGreen: {30, 160, 30, 255},
	optics.WaveBlue:  {30, 30, 220, 255},
}

// writeSpotDiagram draws one panel per field, side by side, each centered
// on the field's green (or first) centroid.
func writeSpotDiagram(path string, spots []spotSet, plotInvalid bool) error {
	var fields []float64
	for _, s := range spots {
		if !slices.Contains(fields, s.field) {
			fields = append(fields, s.field)
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, panelSize*len(fields), panelSize))
	white := color.NRGBA{255, 255, 255, 255}
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			img.Set(x, y, white)
		}
	}
	gray := color.NRGBA{170, 170, 170, 255}
	frame := color.NRGBA{0, 0, 0, 255}

	for k, f := range fields {
		var panel []spotSet
		for _, s := range spots {
			if s.field == f {
				panel = append(panel, s)
			}
		}
		center := panel[0].centroid
		for _, s := range panel {
			if s.wavelength == optics.WaveGreen {
				center = s.centroid
			}
		}
		// Half width covers the widest valid spread in the panel
		half := 1e-3
		for _, s := range panel {
			for i, p := range s.xy {
				if s.valid[i] == 0 {
					continue
				}
				d := p.Sub(center)
				half = math.Max(half, math.Max(math.Abs(d.X), math.Abs(d.Y)))
			}
		}
		half *= 1.1

		x0 := k * panelSize
		for i := 0; i < panelSize; i++ {
			img.Set(x0, i, frame)
			img.Set(x0+i, 0, frame)
			img.Set(x0+i, panelSize-1, frame)
		}
		for _, s := range panel {
			c, ok := waveColors[s.wavelength]
			if !ok {
				c = frame
			}
			for i, p := range s.xy {
				col := c
				if s.valid[i] == 0 {
					if !plotInvalid {
						continue
					}
					col = gray
				}
				d := p.Sub(center)
				px := x0 + int(math.Round((d.X/half+1)/2*float64(panelSize-1)))
				py := int(math.Round((1 - d.Y/half) / 2 * float64(panelSize-1)))
				if px < x0 || px >= x0+panelSize || py < 0 || py >= panelSize {
					continue
				}
				img.Set(px, py, col)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode spot diagram: %w", err)
	}
	if err := store.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write spot diagram: %w", err)
	}
	return nil
}

// zmx renders the lens as a Zemax sequential prescription.
func (l *Lens) zmx() []byte {
	var b strings.Builder
	hfovDeg := l.HFOV * 180 / math.Pi
	fmt.Fprintf(&b, "VERS 190000 0 0\nMODE SEQ\nNAME autolens f=%.4g F/%.3g\n", l.FocLen, l.FNum)
	fmt.Fprintf(&b, "UNIT MM X W X CM MR CPMM\nENPD %.6g\nFLOA\n", 2*l.ApertureRadius())
	fmt.Fprintf(&b, "FTYP 0 0 %d 3 0 0 0\n", len(analysisFields))
	fmt.Fprintf(&b, "XFLN")
	for range analysisFields {
		fmt.Fprintf(&b, " 0")
	}
	fmt.Fprintf(&b, "\nYFLN")
	for _, f := range analysisFields {
		fmt.Fprintf(&b, " %.6g", f*hfovDeg)
	}
	fmt.Fprintf(&b, "\n")
	for i, wv := range optics.WaveRGB {
		fmt.Fprintf(&b, "WAVM %d %.4g 1\n", i+1, wv)
	}

	fmt.Fprintf(&b, "SURF 0\n  TYPE STANDARD\n  CURV 0.0\n  DISZ INFINITY\n")
	for i, s := range l.Surfaces {
		next := l.DSensor
		if i+1 < len(l.Surfaces) {
			next = l.Surfaces[i+1].D
		}
		fmt.Fprintf(&b, "SURF %d\n", i+1)
		if s.Type == Aperture {
			fmt.Fprintf(&b, "  STOP\n  TYPE STANDARD\n  CURV 0.0\n")
		} else if s.Type == Aspheric {
			fmt.Fprintf(&b, "  TYPE EVENASPH\n  CURV %.10g\n  CONI %.10g\n", s.C, s.K)
			for j, a := range s.Ai {
				fmt.Fprintf(&b, "  PARM %d %.10g\n", j+2, a)
			}
		} else {
			fmt.Fprintf(&b, "  TYPE STANDARD\n  CURV %.10g\n", s.C)
		}
		fmt.Fprintf(&b, "  DISZ %.10g\n", next-s.D)
		if s.Type != Aperture && !s.Mat2.IsAir() {
			fmt.Fprintf(&b, "  GLAS %s 0 0 %.6g %.6g 0 0 0 0 0 0\n", zmxGlassName(s.Mat2), s.Mat2.N, s.Mat2.V)
		}
		fmt.Fprintf(&b, "  DIAM %.6g 1 0 0 1 \"\"\n", s.R)
	}
	fmt.Fprintf(&b, "SURF %d\n  TYPE STANDARD\n  CURV 0.0\n  DIAM %.6g\n", len(l.Surfaces)+1, l.RSensor)
	return []byte(b.String())
}

// zmxGlassName returns the catalog name, or a blank model glass for a
// material that was optimized off-catalog.
func zmxGlassName(m *Material) string {
	if _, err := LookupMaterial(m.Name); err == nil && m.Nearest() == *m {
		return m.Name
	}
	return "___BLANK"
}
