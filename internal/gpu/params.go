package gpu

import (
	"encoding/binary"

	"github.com/gogpu/mandelzoom"
)

// rowAlign is the dispatch granularity: one workgroup covers 64 pixels of
// a row, so buffer rows are padded to a 64-pixel multiple.
const rowAlign = 64

// Params is the input block the compute kernel reads at binding 0.
//
// Wire layout, little-endian u32 words:
//
//	[depth limit][reset flag][aligned width][height][x words][y words][step words]
//
// The coordinate words follow the host's internal order, least significant
// first. The kernel is compiled against a matching WORD_COUNT, so the
// layout carries no width tag of its own; host and kernel must agree.
type Params struct {
	DepthLimit uint32
	Reset      bool
	Size       mandelzoom.Dimensions
	Coords     *mandelzoom.Coordinates
}

// ParamsSize returns the encoded byte size for a given coordinate width:
// three numbers of wordCount words plus four header words.
func ParamsSize(wordCount int) int {
	return wordCount*12 + 16
}

// Encode serializes the params block.
func (p *Params) Encode() []byte {
	buf := make([]byte, 16, ParamsSize(p.Coords.Size()))
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.DepthLimit)
	var reset uint32
	if p.Reset {
		reset = 1
	}
	le.PutUint32(buf[4:8], reset)
	le.PutUint32(buf[8:12], p.Size.AlignedWidth(rowAlign))
	le.PutUint32(buf[12:16], p.Size.Height)
	buf = p.Coords.X().AppendBytes(buf)
	buf = p.Coords.Y().AppendBytes(buf)
	buf = p.Coords.Step().AppendBytes(buf)
	return buf
}

// EncodeIterate serializes only the header prefix that changes between
// frames of the same view: a new depth limit and the reset flag. Writing
// it over the first eight bytes of the params buffer lets the kernel
// resume from the intermediate state, or restart it when reset is set.
func EncodeIterate(depthLimit uint32, reset bool) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], depthLimit)
	if reset {
		binary.LittleEndian.PutUint32(buf[4:8], 1)
	}
	return buf
}
