package mandelzoom

// Dimensions is a viewport size in pixels.
type Dimensions struct {
	Width  uint32
	Height uint32
}

// ShortestSide returns the smaller of width and height. The default view
// frames the fractal's escape circle along it.
func (d Dimensions) ShortestSide() uint32 {
	return min(d.Width, d.Height)
}

// Scale returns the dimensions multiplied by a HiDPI scale factor.
func (d Dimensions) Scale(factor float64) Dimensions {
	return Dimensions{
		Width:  uint32(float64(d.Width) * factor),
		Height: uint32(float64(d.Height) * factor),
	}
}

// AlignedWidth returns the width rounded up to a multiple of align.
// GPU buffers are allocated at the aligned width so that a fixed
// workgroup size divides every row evenly.
func (d Dimensions) AlignedWidth(align uint32) uint32 {
	return (d.Width + align - 1) / align * align
}

// Point is a position in untyped float64 coordinates: either a screen
// location or a fractal-plane location shallow enough for native floats.
type Point struct {
	X float64
	Y float64
}

// PrecisePoint is a fractal-plane position in wide fixed-point
// coordinates, for depths where float64 runs out of mantissa.
type PrecisePoint struct {
	X WideFloat
	Y WideFloat
}
