package mans

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func u16Bytes(vals []uint16) []byte {
	buf := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	return buf
}

func TestScenarioA(t *testing.T) {
	data := []uint16{100, 101, 99, 100, 102, 98, 100, 100}
	params := DefaultParams(U16)

	out, err := CompressElements(params, data)
	require.NoError(t, err)
	assert.Equal(t, byte(1), out[0])

	decoded, err := DecompressElements[uint16](params, out)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestScenarioB(t *testing.T) {
	data := []uint16{0, 5000, 0, 5000, 0, 5000, 0, 5000}
	params := DefaultParams(U16)

	out, err := CompressElements(params, data)
	require.NoError(t, err)
	assert.Equal(t, byte(2), out[0])

	decoded, err := DecompressElements[uint16](params, out)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestScenarioC(t *testing.T) {
	data := []uint32{42, 42, 42, 42}
	params := DefaultParams(U32)

	out, err := CompressElements(params, data)
	require.NoError(t, err)
	assert.Equal(t, byte(1), out[0])

	decoded, err := DecompressElements[uint32](params, out)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestScenarioD(t *testing.T) {
	data := make([]uint16, 512)
	for i := range data {
		data[i] = uint16((i * 7) % 4000)
	}
	params := DefaultParams(U16)

	out, err := CompressElements(params, data)
	require.NoError(t, err)
	assert.Equal(t, byte(1), out[0])

	decoded, err := DecompressElements[uint16](params, out)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestScenarioE(t *testing.T) {
	data := make([]uint16, 10_000)
	for i := range data {
		data[i] = uint16(i*9173 + 17)
	}
	params := DefaultParams(U16)

	raw := u16Bytes(data)
	out, err := Compress(params, raw)
	require.NoError(t, err)
	assert.Equal(t, byte(2), out[0]) // arbitrary values, no grouping benefit

	decoded, err := Decompress(params, out)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestEmptyInput(t *testing.T) {
	params := DefaultParams(U16)

	out, err := Compress(params, nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	decoded, err := Decompress(params, nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestBadCodecTag(t *testing.T) {
	params := DefaultParams(U16)
	_, err := DecompressElements[uint16](params, []byte{3, 0, 0, 0})

	require.Error(t, err)
	var mansErr *Error
	require.ErrorAs(t, err, &mansErr)
	assert.Equal(t, KindBadCodec, mansErr.Kind)
}

func TestDeterminism(t *testing.T) {
	data := make([]uint16, 5000)
	for i := range data {
		data[i] = uint16(1000 + i%37)
	}
	params := DefaultParams(U16)

	a, err := CompressElements(params, data)
	require.NoError(t, err)
	b, err := CompressElements(params, data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRoundtripPropertyU16(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Uint16(), 0, 3000).Draw(t, "data")
		params := DefaultParams(U16)

		out, err := CompressElements(params, data)
		require.NoError(t, err)
		decoded, err := DecompressElements[uint16](params, out)
		require.NoError(t, err)
		require.Equal(t, data, decoded)
	})
}

func TestCodecSelectionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Uint16Range(0, 8000), 1, 2000).Draw(t, "data")
		threshold := uint64(4000)
		params := Params{ElementType: U16, ADMThreshold: threshold}

		out, err := CompressElements(params, data)
		require.NoError(t, err)

		var maxDiff uint64
		for start := 0; start < len(data); start += 512 {
			end := start + 512
			if end > len(data) {
				end = len(data)
			}
			window := data[start:end]
			mn, mx := window[0], window[0]
			for _, v := range window {
				if v < mn {
					mn = v
				}
				if v > mx {
					mx = v
				}
			}
			if d := uint64(mx) - uint64(mn); d > maxDiff {
				maxDiff = d
			}
		}

		wantCodec := byte(2)
		if maxDiff <= threshold {
			wantCodec = 1
		}
		require.Equal(t, wantCodec, out[0])
	})
}
