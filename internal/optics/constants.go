package optics

// Wavelengths in µm.
const (
	WaveRed   = 0.656
	WaveGreen = 0.589
	WaveBlue  = 0.486
)

// WaveRGB approximates the red, green and blue channels.
var WaveRGB = []float64{WaveRed, WaveGreen, WaveBlue}

const (
	// DefaultDepth is the object distance in mm (negative: in front of the lens).
	DefaultDepth = -20000.0

	// Epsilon guards every division by a ray count.
	Epsilon = 1e-9
)
