// Package pans implements a tabulated, block-parallel range-ANS byte coder: the input is
// split into fixed 4096-byte blocks, each with its own 32-lane interleaved rANS state,
// so blocks decode independently and in parallel.
package pans

import (
	"encoding/binary"
	"fmt"

	"github.com/ha1tch/mans/internal/fanout"
)

const (
	// Precision is log2 of the probability table size; fixed per the format.
	Precision = 10
	// ProbScale is 2^Precision, the total of all normalized symbol frequencies.
	ProbScale = 1 << Precision

	// BlockSize is the number of decoded bytes covered by one independent ANS unit.
	BlockSize = 4096
	// WarpSize is the number of interleaved ANS lanes per block.
	WarpSize = 32
	// BlockAlignment is the byte alignment of the fixed header, symbol table, and each
	// block's encoded payload.
	BlockAlignment = 16

	ransWordBits = 16
	ransL        = uint32(1) << ransWordBits

	magic   = 0x53_4e_41_50 // "PANS" read little-endian
	version = 1

	fixedHeaderSize = 32
	tableSize       = 256 * 2 // pdf, one uint16 per symbol
)

// Symbol holds the normalized frequency and cumulative frequency of one byte value.
type Symbol struct {
	CumFreq uint32
	Freq    uint32
}

// SymbolTable is the probability model shared by every block in a container.
type SymbolTable struct {
	Symbols    [256]Symbol
	SlotSymbol [ProbScale]byte
}

// BuildTable normalizes raw byte-frequency counts to a probability mass of exactly
// ProbScale, guaranteeing every symbol with a non-zero count gets at least one slot. The
// rounding correction lands on the largest bucket; an excess larger than that bucket can
// give up while keeping one slot is taken from the next largest bucket in turn.
func BuildTable(counts [256]uint32) *SymbolTable {
	tab := &SymbolTable{}

	var total uint64
	for _, c := range counts {
		total += uint64(c)
	}
	if total == 0 {
		tab.Symbols[0] = Symbol{Freq: ProbScale}
		for i := range tab.SlotSymbol {
			tab.SlotSymbol[i] = 0
		}
		return tab
	}

	var normalized [256]uint32
	var normTotal uint32
	for i, c := range counts {
		if c == 0 {
			continue
		}
		n := uint32((uint64(c) * ProbScale) / total)
		if n == 0 {
			n = 1
		}
		normalized[i] = n
		normTotal += n
	}

	for normTotal != ProbScale {
		maxIdx := 0
		for i, n := range normalized {
			if n > normalized[maxIdx] {
				maxIdx = i
			}
		}
		if normTotal > ProbScale {
			take := min(normTotal-ProbScale, normalized[maxIdx]-1)
			normalized[maxIdx] -= take
			normTotal -= take
		} else {
			normalized[maxIdx] += ProbScale - normTotal
			normTotal = ProbScale
		}
	}

	var cum uint32
	for i, n := range normalized {
		tab.Symbols[i] = Symbol{CumFreq: cum, Freq: n}
		for j := uint32(0); j < n; j++ {
			tab.SlotSymbol[cum+j] = byte(i)
		}
		cum += n
	}
	return tab
}

func histogram(data []byte) [256]uint32 {
	var counts [256]uint32
	for _, b := range data {
		counts[b]++
	}
	return counts
}

// BlockMeta is the per-block record in the coalesced container: the 32 lane states the
// decoder starts from, the block's decoded/encoded sizes, and the byte offset of its
// payload within the payload section.
type BlockMeta struct {
	WarpStates  [WarpSize]uint32
	DecodedSize uint32
	Words       uint32
	Prefix      uint32
}

// Container is the in-memory form of a PANS coalesced container.
type Container struct {
	NBytes uint64
	Table  *SymbolTable
	Blocks []BlockMeta
	// Payload holds every block's encoded words (2 bytes each), back to back, each
	// block's span individually padded to BlockAlignment.
	Payload []byte
}

func numBlocks(n int) int {
	return (n + BlockSize - 1) / BlockSize
}

func align16(n int) int {
	return (n + BlockAlignment - 1) &^ (BlockAlignment - 1)
}

func blockXMax(freq uint32) uint64 {
	return (uint64(ransL>>Precision) << ransWordBits) * uint64(freq)
}

// encodeBlock runs the lockstep 32-lane rANS encode over one decoded block and returns the
// lane states the decoder should start from plus the forward-ordered encoded word stream.
//
// Lanes are walked high-to-low within each column and columns are walked last-to-first,
// mirroring decode's low-to-high / first-to-last walk once the accumulated word stream is
// reversed; see DESIGN.md for why this nesting order is required, not just the column
// order.
func encodeBlock(block []byte, tab *SymbolTable) ([WarpSize]uint32, []uint16) {
	var state [WarpSize]uint32
	for l := range state {
		state[l] = ransL
	}

	n := len(block)
	cols := (n + WarpSize - 1) / WarpSize
	var words []uint16

	for col := cols - 1; col >= 0; col-- {
		for lane := WarpSize - 1; lane >= 0; lane-- {
			idx := col*WarpSize + lane
			if idx >= n {
				continue
			}
			sym := tab.Symbols[block[idx]]
			xMax := blockXMax(sym.Freq)
			for uint64(state[lane]) >= xMax {
				words = append(words, uint16(state[lane]&0xFFFF))
				state[lane] >>= ransWordBits
			}
			state[lane] = (state[lane]/sym.Freq)<<Precision + sym.CumFreq + state[lane]%sym.Freq
		}
	}

	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return state, words
}

func decodeBlock(meta BlockMeta, words []uint16, tab *SymbolTable) ([]byte, error) {
	n := int(meta.DecodedSize)
	out := make([]byte, n)
	state := meta.WarpStates
	cols := (n + WarpSize - 1) / WarpSize
	cursor := 0

	for col := 0; col < cols; col++ {
		for lane := 0; lane < WarpSize; lane++ {
			idx := col*WarpSize + lane
			if idx >= n {
				continue
			}
			slot := state[lane] & (ProbScale - 1)
			s := tab.SlotSymbol[slot]
			out[idx] = s
			sym := tab.Symbols[s]
			state[lane] = sym.Freq*(state[lane]>>Precision) + slot - sym.CumFreq
			for state[lane] < ransL {
				if cursor >= len(words) {
					return nil, &TruncatedError{}
				}
				state[lane] = (state[lane] << ransWordBits) | uint32(words[cursor])
				cursor++
			}
		}
	}
	if cursor != len(words) {
		return nil, &HeaderError{Reason: "block consumed fewer words than recorded"}
	}
	return out, nil
}

// Encode splits data into fixed blocks and entropy-codes each independently in parallel.
func Encode(data []byte) (*Container, error) {
	n := len(data)
	c := &Container{NBytes: uint64(n)}
	if n == 0 {
		c.Table = BuildTable([256]uint32{})
		return c, nil
	}

	c.Table = BuildTable(histogram(data))

	nb := numBlocks(n)
	c.Blocks = make([]BlockMeta, nb)
	blockWords := make([][]uint16, nb)

	err := fanout.Range(nb, func(bi int) error {
		start := bi * BlockSize
		end := min(start+BlockSize, n)
		state, words := encodeBlock(data[start:end], c.Table)
		c.Blocks[bi] = BlockMeta{
			WarpStates:  state,
			DecodedSize: uint32(end - start),
			Words:       uint32(len(words)),
		}
		blockWords[bi] = words
		return nil
	})
	if err != nil {
		return nil, err
	}

	prefix := 0
	spans := make([]int, nb)
	for bi := range c.Blocks {
		c.Blocks[bi].Prefix = uint32(prefix)
		spans[bi] = prefix
		prefix += align16(len(blockWords[bi]) * 2)
	}
	c.Payload = make([]byte, prefix)

	err = fanout.Range(nb, func(bi int) error {
		off := spans[bi]
		for i, w := range blockWords[bi] {
			binary.LittleEndian.PutUint16(c.Payload[off+2*i:], w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Decode reverses Encode, decoding every block independently in parallel.
func Decode(c *Container) ([]byte, error) {
	n := int(c.NBytes)
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}

	err := fanout.Range(len(c.Blocks), func(bi int) error {
		meta := c.Blocks[bi]
		wordCount := int(meta.Words)
		words := make([]uint16, wordCount)
		off := int(meta.Prefix)
		for i := range words {
			words[i] = binary.LittleEndian.Uint16(c.Payload[off+2*i:])
		}
		decoded, err := decodeBlock(meta, words, c.Table)
		if err != nil {
			return err
		}
		start := bi * BlockSize
		copy(out[start:start+len(decoded)], decoded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HeaderError reports a structurally invalid PANS container (magic/precision mismatch, or
// an internal accounting invariant violated).
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string { return fmt.Sprintf("pans: bad header: %s", e.Reason) }

// TruncatedError reports a PANS container shorter than its header declares.
type TruncatedError struct{}

func (e *TruncatedError) Error() string { return "pans: truncated container" }

// Marshal serializes the container: fixed header, symbol table (pdf only; cdf and the
// slot lookup are rebuilt on parse), per-block metadata, then the aligned payload.
func (c *Container) Marshal() []byte {
	nb := len(c.Blocks)
	headerEnd := align16(fixedHeaderSize)
	tableOff := headerEnd
	tableEnd := align16(tableOff + tableSize)
	metaOff := tableEnd
	metaEnd := align16(metaOff + nb*(WarpSize*4+8))
	payloadOff := metaEnd

	buf := make([]byte, payloadOff+len(c.Payload))

	binary.LittleEndian.PutUint32(buf[0:], magic)
	binary.LittleEndian.PutUint32(buf[4:], version)
	binary.LittleEndian.PutUint64(buf[8:], c.NBytes)
	binary.LittleEndian.PutUint32(buf[16:], Precision)
	binary.LittleEndian.PutUint32(buf[20:], uint32(nb))
	binary.LittleEndian.PutUint64(buf[24:], uint64(len(c.Payload)))

	if c.Table != nil {
		for i, sym := range c.Table.Symbols {
			binary.LittleEndian.PutUint16(buf[tableOff+2*i:], uint16(sym.Freq))
		}
	}

	off := metaOff
	for _, b := range c.Blocks {
		for l, s := range b.WarpStates {
			binary.LittleEndian.PutUint32(buf[off+4*l:], s)
		}
		off += WarpSize * 4
		binary.LittleEndian.PutUint32(buf[off:], b.DecodedSize<<16|(b.Words&0xFFFF))
		binary.LittleEndian.PutUint32(buf[off+4:], b.Prefix)
		off += 8
	}

	copy(buf[payloadOff:], c.Payload)
	return buf
}

// Unmarshal parses and validates a container produced by Marshal.
func Unmarshal(b []byte) (*Container, error) {
	if len(b) < fixedHeaderSize {
		return nil, &TruncatedError{}
	}
	if binary.LittleEndian.Uint32(b[0:]) != magic {
		return nil, &HeaderError{Reason: "bad magic"}
	}
	if binary.LittleEndian.Uint32(b[4:]) != version {
		return nil, &HeaderError{Reason: "unsupported version"}
	}
	nBytes := binary.LittleEndian.Uint64(b[8:])
	precision := binary.LittleEndian.Uint32(b[16:])
	if precision != Precision {
		return nil, &HeaderError{Reason: "unsupported precision"}
	}
	nb := int(binary.LittleEndian.Uint32(b[20:]))
	payloadSize := int(binary.LittleEndian.Uint64(b[24:]))

	headerEnd := align16(fixedHeaderSize)
	tableOff := headerEnd
	tableEnd := align16(tableOff + tableSize)
	metaOff := tableEnd
	metaEnd := align16(metaOff + nb*(WarpSize*4+8))
	payloadOff := metaEnd

	if len(b) < payloadOff+payloadSize {
		return nil, &TruncatedError{}
	}

	c := &Container{NBytes: nBytes}
	c.Table = &SymbolTable{}
	var counts [256]uint32
	for i := range counts {
		counts[i] = uint32(binary.LittleEndian.Uint16(b[tableOff+2*i:]))
	}
	var cum uint32
	for i, n := range counts {
		c.Table.Symbols[i] = Symbol{CumFreq: cum, Freq: n}
		for j := uint32(0); j < n; j++ {
			c.Table.SlotSymbol[cum+j] = byte(i)
		}
		cum += n
	}
	if cum != ProbScale && nb > 0 {
		return nil, &HeaderError{Reason: "symbol table does not sum to ProbScale"}
	}

	c.Blocks = make([]BlockMeta, nb)
	off := metaOff
	for bi := range c.Blocks {
		var meta BlockMeta
		for l := range meta.WarpStates {
			meta.WarpStates[l] = binary.LittleEndian.Uint32(b[off+4*l:])
		}
		off += WarpSize * 4
		words := binary.LittleEndian.Uint32(b[off:])
		meta.DecodedSize = words >> 16
		meta.Words = words & 0xFFFF
		meta.Prefix = binary.LittleEndian.Uint32(b[off+4:])
		off += 8
		c.Blocks[bi] = meta
	}

	c.Payload = make([]byte, payloadSize)
	copy(c.Payload, b[payloadOff:payloadOff+payloadSize])

	return c, nil
}
