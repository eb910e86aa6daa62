package mandelzoom

import (
	"errors"
	"math"
	"math/bits"
)

// Conversion errors. Values that are merely too small to represent do not
// error: they degrade to zero, which is the useful behavior when a zoom
// level outgrows float precision.
var (
	// ErrIsNaN is returned when converting a NaN into a WideFloat.
	ErrIsNaN = errors.New("mandelzoom: cannot represent NaN")
	// ErrOutOfRange is returned when a value's magnitude does not fit the
	// signed integer word. Infinities fall under it as well.
	ErrOutOfRange = errors.New("mandelzoom: value does not fit the integer word")
)

const (
	f32MantissaBits = 24
	f64MantissaBits = 53
)

// FromFloat32 converts v into a WideFloat of the given word count.
//
// The mantissa with its implicit leading bit is positioned at the top of a
// word and shifted down by the unbiased exponent, landing in at most two
// adjacent words. Bits that fall below the least-significant word are
// dropped; a value entirely below it converts to zero, as do subnormals.
func FromFloat32(v float32, size int) (WideFloat, error) {
	if v != v {
		return WideFloat{}, ErrIsNaN
	}
	neg := v < 0
	if neg {
		v = -v
	}
	b := math.Float32bits(v)
	e := int(b>>(f32MantissaBits-1)) & 0xff
	if e == 0 {
		// Subnormals round to zero.
		return Zero(size), nil
	}
	if e == 0xff {
		return WideFloat{}, ErrOutOfRange
	}
	m := (b&(1<<(f32MantissaBits-1)-1))<<(wordWidth-f32MantissaBits) | 1<<(wordWidth-1)

	// Distance from the top of the integer word down to the mantissa's
	// leading bit. Anything above 2^31 cannot carry a sign bit and is
	// rejected.
	shift := 0x7e - e + wordWidth
	if shift < 1 {
		return WideFloat{}, ErrOutOfRange
	}
	offset := shift / wordWidth
	r := uint(shift % wordWidth)

	left := m >> r
	var right uint32
	if r != 0 {
		right = m << (wordWidth - r)
	}

	w := Zero(size)
	if hi := size - 1 - offset; hi >= 0 {
		w.words[hi] = left
		if hi > 0 {
			w.words[hi-1] = right
		}
	}
	if neg {
		w.Neg()
	}
	return w, nil
}

// FromFloat64 converts v into a WideFloat of the given word count, with
// the same range and degradation rules as FromFloat32. The 53-bit
// mantissa spans up to three adjacent words.
func FromFloat64(v float64, size int) (WideFloat, error) {
	if v != v {
		return WideFloat{}, ErrIsNaN
	}
	neg := v < 0
	if neg {
		v = -v
	}
	b := math.Float64bits(v)
	e := int(b>>(f64MantissaBits-1)) & 0x7ff
	if e == 0 {
		return Zero(size), nil
	}
	if e == 0x7ff {
		return WideFloat{}, ErrOutOfRange
	}
	m := (b&(1<<(f64MantissaBits-1)-1))<<(64-f64MantissaBits) | 1<<63

	shift := 0x3fe - e + wordWidth
	if shift < 1 {
		return WideFloat{}, ErrOutOfRange
	}
	offset := shift / wordWidth
	r := uint(shift % wordWidth)

	top := uint32(m >> (wordWidth + r))
	mid := uint32(m >> r)
	low := uint32(m << (wordWidth - r))

	w := Zero(size)
	if hi := size - 1 - offset; hi >= 0 {
		w.words[hi] = top
		if hi > 0 {
			w.words[hi-1] = mid
		}
		if hi > 1 {
			w.words[hi-2] = low
		}
	}
	if neg {
		w.Neg()
	}
	return w, nil
}

// Float32 converts w to the nearest-below binary32 value: the fraction is
// truncated, never rounded. Negative values are negated on the fly while
// scanning for the most significant nonzero word, so no temporary copy is
// made. Magnitudes below the binary32 normal range collapse to zero.
func (w *WideFloat) Float32() float32 {
	if w.IsZero() {
		return 0
	}
	neg := w.Floor() < 0

	var zeroWords, firstWord, secondWord uint32
	carry := uint32(1)
	for _, word := range w.words {
		if neg {
			word, carry = bits.Add32(^word, carry, 0)
		}
		if word != 0 {
			secondWord = firstWord
			firstWord = word
			zeroWords = 0
		} else {
			zeroWords++
		}
	}

	wordZeros := uint32(bits.LeadingZeros32(firstWord))
	mantissa := uint32(1)<<(wordWidth-1-wordZeros) ^ firstWord
	exponent := 0x7e + wordWidth - int(wordZeros+wordWidth*zeroWords)
	if exponent <= 0 {
		return 0
	}

	shift := int(wordZeros) - wordWidth + f32MantissaBits
	var v uint32
	if shift <= 0 {
		v = mantissa >> uint(-shift)
	} else {
		v = mantissa<<uint(shift) | secondWord>>uint(wordWidth-shift)
	}

	f := math.Float32frombits(uint32(exponent)<<(f32MantissaBits-1) | v)
	if neg {
		return -f
	}
	return f
}

// Float64 converts w to the nearest-below binary64 value, truncating like
// Float32. The 52 fraction bits may straddle three words, so the scan
// keeps the two words directly below the most significant nonzero one.
func (w *WideFloat) Float64() float64 {
	if w.IsZero() {
		return 0
	}
	neg := w.Floor() < 0

	var zeroWords, firstWord, secondWord, thirdWord uint32
	var hist1, hist2 uint32
	carry := uint32(1)
	for _, word := range w.words {
		if neg {
			word, carry = bits.Add32(^word, carry, 0)
		}
		if word != 0 {
			firstWord = word
			secondWord = hist1
			thirdWord = hist2
			zeroWords = 0
		} else {
			zeroWords++
		}
		hist2 = hist1
		hist1 = word
	}

	wordZeros := uint(bits.LeadingZeros32(firstWord))
	exponent := 0x3fe + wordWidth - int(wordZeros) - wordWidth*int(zeroWords)
	if exponent <= 0 {
		return 0
	}

	// Leading 1 sits at bit 63-wordZeros of the top word pair; shift it
	// out and refill the vacated low bits from the third word.
	m := (uint64(firstWord)<<32 | uint64(secondWord)) << (wordZeros + 1)
	m |= uint64(thirdWord >> (wordWidth - 1 - wordZeros))
	frac := m >> (64 - (f64MantissaBits - 1))

	f := math.Float64frombits(uint64(exponent)<<(f64MantissaBits-1) | frac)
	if neg {
		return -f
	}
	return f
}
