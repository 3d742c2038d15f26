package curve

import "math"

// XY is a CIE 1931 chromaticity coordinate
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RGB is an 8-bit sRGB triple
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

const (
	planckianFloor = 1200.0
	deepRedFloor   = 500.0
)

// deepRed is where the curve below 1200K ends up
var deepRed = XY{X: 0.700, Y: 0.299}

// KelvinToXY converts a colour temperature to xy.
//
// Above 1200K this follows the Planckian locus approximation. Below it the
// point slides linearly toward deep red, reaching it at 500K.
func KelvinToXY(kelvin float64) XY {
	if kelvin >= planckianFloor {
		return planckianXY(kelvin)
	}
	k := max(kelvin, deepRedFloor)
	t := (planckianFloor - k) / (planckianFloor - deepRedFloor)
	base := planckianXY(planckianFloor)
	return XY{
		X: base.X + (deepRed.X-base.X)*t,
		Y: base.Y + (deepRed.Y-base.Y)*t,
	}
}

func planckianXY(kelvin float64) XY {
	t := clamp(kelvin, 1000, 25000)
	inv := 1000 / t

	var x float64
	if t <= 4000 {
		x = cubic(inv, -0.2661239, -0.2343589, 0.8776956, 0.179910)
	} else {
		x = cubic(inv, -3.0258469, 2.1070379, 0.2226347, 0.240390)
	}

	var y float64
	switch {
	case t <= 2222:
		y = cubic(x, -1.1063814, -1.34811020, 2.18555832, -0.20219683)
	case t <= 4000:
		y = cubic(x, -0.9549476, -1.37418593, 2.09137015, -0.16748867)
	default:
		y = cubic(x, 3.0817580, -5.87338670, 3.75112997, -0.37001483)
	}
	return XY{X: x, Y: y}
}

// cubic evaluates a*v^3 + b*v^2 + c*v + d
func cubic(v, a, b, c, d float64) float64 {
	return ((a*v+b)*v+c)*v + d
}

// KelvinToRGB converts a colour temperature to display sRGB at full luminance.
func KelvinToRGB(kelvin float64) RGB {
	p := KelvinToXY(kelvin)
	if p.Y <= 0 {
		return RGB{}
	}

	X := p.X / p.Y
	Y := 1.0
	Z := (1 - p.X - p.Y) / p.Y

	r := 3.2404542*X - 1.5371385*Y - 0.4985314*Z
	g := -0.9692660*X + 1.8760108*Y + 0.0415560*Z
	b := 0.0556434*X - 0.2040259*Y + 1.0572252*Z

	r, g, b = max(r, 0), max(g, 0), max(b, 0)
	if m := max(r, g, b); m > 1 {
		r, g, b = r/m, g/m, b/m
	}

	return RGB{R: gamma(r), G: gamma(g), B: gamma(b)}
}

func gamma(v float64) uint8 {
	if v <= 0.0031308 {
		v *= 12.92
	} else {
		v = 1.055*math.Pow(v, 1/2.4) - 0.055
	}
	return uint8(math.Round(clamp(v, 0, 1) * 255))
}
