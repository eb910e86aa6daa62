package mandelzoom

import (
	"fmt"
	"math/bits"
)

// wordWidth is the number of bits per limb. The GPU kernel operates on u32
// words, so the host representation uses 32-bit limbs as well; both sides
// must agree bit-for-bit.
const wordWidth = 32

// WideFloat is a fixed-width two's-complement fixed-point number used for
// fractal coordinates beyond native float precision.
//
// The value is stored as N unsigned 32-bit words, least significant first.
// Word N-1 is the integer word: reinterpreted as a signed two's-complement
// integer it carries both the integer part and the sign of the whole value.
// Words 0..N-2 hold fractional bits; the implied radix point sits directly
// below the integer word. The represented value is the N*32-bit
// two's-complement integer formed by the words, divided by 2^(32*(N-1)).
//
// Precision changes only by inserting or removing least-significant words
// (see ChangePrecision); the radix point never moves relative to the
// integer word. There is no division.
//
// Binary operators require both operands to share the same word count.
// A mismatch is a contract violation and panics: the coordinate manager
// owns the invariant that x, y and step always resize in lock-step, and
// continuing with misaligned buffers would corrupt coordinates silently.
type WideFloat struct {
	words []uint32
}

// Zero returns the zero value with the given word count.
func Zero(size int) WideFloat {
	return WideFloat{words: make([]uint32, size)}
}

// MinPositive returns the smallest positive value of the given word count
// that still keeps `precision` fractional bits representable below its
// single set bit. It is used as the zoom-in floor for the per-pixel step.
//
// MinPositive panics when the requested precision does not fit in `size`
// words.
func MinPositive(size, precision int) WideFloat {
	idx := precision / wordWidth
	if idx >= size {
		panic(fmt.Sprintf("mandelzoom: precision %d does not fit in %d words", precision, size))
	}
	w := Zero(size)
	w.words[idx] = 1 << (precision % wordWidth)
	return w
}

// FromInt32 returns a WideFloat holding v in the integer word, with all
// fractional words zero.
func FromInt32(v int32, size int) WideFloat {
	w := Zero(size)
	w.words[size-1] = uint32(v)
	return w
}

// WordCount returns the number of 32-bit words in the representation.
func (w *WideFloat) WordCount() int { return len(w.words) }

// Clone returns a deep copy sharing no storage with w.
func (w *WideFloat) Clone() WideFloat {
	out := WideFloat{words: make([]uint32, len(w.words))}
	copy(out.words, w.words)
	return out
}

// Floor returns the integer word reinterpreted as a signed integer.
// For negative non-integer values this rounds toward negative infinity,
// which is exactly the two's-complement floor.
func (w *WideFloat) Floor() int32 { return int32(w.words[len(w.words)-1]) }

// IsInt reports whether every fractional word is zero.
func (w *WideFloat) IsInt() bool {
	for _, word := range w.words[:len(w.words)-1] {
		if word != 0 {
			return false
		}
	}
	return true
}

// IsZero reports whether all words are zero.
func (w *WideFloat) IsZero() bool {
	for _, word := range w.words {
		if word != 0 {
			return false
		}
	}
	return true
}

// checkWidth panics when rhs has a different word count than w.
// Mismatched widths indicate a broken invariant upstream, not a
// recoverable condition.
func (w *WideFloat) checkWidth(rhs *WideFloat) {
	if len(w.words) != len(rhs.words) {
		panic(fmt.Sprintf("mandelzoom: word count mismatch: %d != %d", len(w.words), len(rhs.words)))
	}
}

// Add adds rhs to w in place. The carry out of the integer word is
// discarded; wraparound is the defined two's-complement behavior.
func (w *WideFloat) Add(rhs *WideFloat) {
	w.checkWidth(rhs)
	var carry uint32
	for i := range w.words {
		w.words[i], carry = bits.Add32(w.words[i], rhs.words[i], carry)
	}
}

// Sub subtracts rhs from w in place, with the same wraparound semantics
// as Add.
func (w *WideFloat) Sub(rhs *WideFloat) {
	w.checkWidth(rhs)
	var borrow uint32
	for i := range w.words {
		w.words[i], borrow = bits.Sub32(w.words[i], rhs.words[i], borrow)
	}
}

// Neg negates w in place: complement every word, then add one with carry
// propagation. Neg(Neg(x)) == x for every representable x, including the
// most negative integer word (which wraps rather than overflows).
func (w *WideFloat) Neg() {
	carry := uint32(1)
	for i, word := range w.words {
		w.words[i], carry = bits.Add32(^word, carry, 0)
	}
}

// Mul returns the product of w and rhs at the same word count.
//
// Signs are handled separately: both magnitudes are made non-negative up
// front and the result is negated at the end when exactly one operand was
// negative. Each word of |w| is multiplied against the whole of |rhs|
// with a word-level carry chain, the partial product is word-shifted to
// realign it with the fixed radix point, and accumulated. Low-order bits
// that fall below the fixed width are discarded, so this is a truncating
// multiply, not a rounding one.
func (w *WideFloat) Mul(rhs *WideFloat) WideFloat {
	w.checkWidth(rhs)
	n := len(w.words)

	lneg := w.Floor() < 0
	rneg := rhs.Floor() < 0
	absL := w.Clone()
	if lneg {
		absL.Neg()
	}
	absR := rhs.Clone()
	if rneg {
		absR.Neg()
	}

	result := Zero(n)
	part := Zero(n)
	for i, lw := range absL.words {
		copy(part.words, absR.words)
		var carry uint32
		for j := range part.words {
			hi, lo := bits.Mul32(lw, part.words[j])
			sum, c := bits.Add32(lo, carry, 0)
			part.words[j] = sum
			carry = hi + c
		}
		part.Shr(uint(n-i-1) * wordWidth)
		if carry != 0 && i+1 < n {
			// The product's high word lands one above the current limb.
			// For the integer word it would fall off the top and is
			// discarded, matching the wraparound contract of Add.
			part.words[i+1] = carry
		}
		result.Add(&part)
	}

	if lneg != rneg {
		result.Neg()
	}
	return result
}

// MulAssign replaces w with w*rhs.
func (w *WideFloat) MulAssign(rhs *WideFloat) {
	*w = w.Mul(rhs)
}

// Shr shifts w right by k bits: the whole-word move first, zero-filling
// the vacated high words, then one pass carrying the intra-word remainder
// between adjacent words. Vacated high words are zero-filled regardless
// of sign.
func (w *WideFloat) Shr(k uint) {
	n := len(w.words)
	rotate := int(k / wordWidth)
	if rotate >= n {
		clear(w.words)
		return
	}
	copy(w.words, w.words[rotate:])
	clear(w.words[n-rotate:])

	if shift := k % wordWidth; shift != 0 {
		var carry uint32
		for i := n - 1; i >= 0; i-- {
			word := w.words[i]
			w.words[i] = word>>shift | carry
			carry = word << (wordWidth - shift)
		}
	}
}

// Shl shifts w left by k bits, zero-filling from the least-significant
// end. Bits shifted past the integer word are discarded.
func (w *WideFloat) Shl(k uint) {
	n := len(w.words)
	rotate := int(k / wordWidth)
	if rotate >= n {
		clear(w.words)
		return
	}
	copy(w.words[rotate:], w.words[:n-rotate])
	clear(w.words[:rotate])

	if shift := k % wordWidth; shift != 0 {
		var carry uint32
		for i := range n {
			word := w.words[i]
			w.words[i] = word<<shift | carry
			carry = word >> (wordWidth - shift)
		}
	}
}

// Cmp returns -1, 0 or 1 ordering w against rhs: the integer words
// compare as signed integers first, then the fractional words as an
// unsigned big integer, most significant first.
func (w *WideFloat) Cmp(rhs *WideFloat) int {
	w.checkWidth(rhs)
	n := len(w.words)
	lf, rf := int32(w.words[n-1]), int32(rhs.words[n-1])
	if lf != rf {
		if lf < rf {
			return -1
		}
		return 1
	}
	for i := n - 2; i >= 0; i-- {
		if w.words[i] != rhs.words[i] {
			if w.words[i] < rhs.words[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CmpInt32 orders w against a bare integer. The integer parts compare
// first; when they are equal, any nonzero fractional content makes w
// strictly greater.
func (w *WideFloat) CmpInt32(v int32) int {
	f := w.Floor()
	switch {
	case f < v:
		return -1
	case f > v:
		return 1
	case !w.IsInt():
		return 1
	default:
		return 0
	}
}

// EqInt32 reports whether w is exactly the integer v.
func (w *WideFloat) EqInt32(v int32) bool {
	return w.Floor() == v && w.IsInt()
}

// Equal reports exact word-for-word equality.
func (w *WideFloat) Equal(rhs *WideFloat) bool {
	if len(w.words) != len(rhs.words) {
		return false
	}
	for i := range w.words {
		if w.words[i] != rhs.words[i] {
			return false
		}
	}
	return true
}

// PrecisionDiff returns the number of words to prepend at the
// least-significant end (positive) or remove from it (negative) so that
// at least extraBits bits of precision remain below the first nonzero
// bit of the current value.
//
// The scan runs from the most significant nonzero word downward; a value
// that is entirely zero counts as occupying no words.
func (w *WideFloat) PrecisionDiff(extraBits int) int {
	extraWords := extraBits/wordWidth + 1
	var threshold uint32
	if rem := extraBits % wordWidth; rem > 0 {
		threshold = 1 << (rem - 1)
	}

	var msw uint32
	used := 0
	for i := len(w.words) - 1; i >= 0; i-- {
		if w.words[i] != 0 {
			msw = w.words[i]
			used = i + 1
			break
		}
	}

	diff := extraWords - used
	if msw <= threshold {
		diff++
	}
	return diff
}

// ChangePrecision grows or shrinks the word count by wordDiff. Positive
// wordDiff inserts zero words at the least-significant end (exact);
// negative removes words from it, silently discarding their bits. That
// loss is how zooming out trades precision for speed, not an error.
func (w *WideFloat) ChangePrecision(wordDiff int) {
	switch {
	case wordDiff > 0:
		grown := make([]uint32, len(w.words)+wordDiff)
		copy(grown[wordDiff:], w.words)
		w.words = grown
	case wordDiff < 0:
		w.words = append(w.words[:0], w.words[-wordDiff:]...)
	}
}

// AppendBytes appends the wire encoding of w to dst and returns the
// extended slice: each word in little-endian byte order, least
// significant word first. The GPU kernel is compiled against the same
// word count and consumes this layout directly; there is no checksum or
// version tag, so any disagreement shows up as wrong pixels, not as an
// error.
func (w *WideFloat) AppendBytes(dst []byte) []byte {
	for _, word := range w.words {
		dst = append(dst, byte(word), byte(word>>8), byte(word>>16), byte(word>>24))
	}
	return dst
}

// Bytes returns the wire encoding of w. See AppendBytes.
func (w *WideFloat) Bytes() []byte {
	return w.AppendBytes(make([]byte, 0, len(w.words)*4))
}

// String formats w as an approximate decimal with its word count, for
// logs and test failures.
func (w *WideFloat) String() string {
	return fmt.Sprintf("%g[%dw]", w.Float64(), len(w.words))
}
