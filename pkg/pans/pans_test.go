package pans

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func makeAllBytes() []byte {
	out := make([]byte, 256*4)
	for i := range out {
		out[i] = byte(i % 256)
	}
	return out
}

func makeSkewed(n int) []byte {
	r := rand.New(rand.NewSource(1))
	out := make([]byte, n)
	for i := range out {
		if r.Intn(10) < 8 {
			out[i] = 'a'
		} else {
			out[i] = byte(r.Intn(256))
		}
	}
	return out
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0},
		{1, 2, 3, 4, 5},
		makeAllBytes(),
		makeSkewed(10_000),
	}
	for _, data := range cases {
		c, err := Encode(data)
		require.NoError(t, err)
		out, err := Decode(c)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	}
}

func TestMultiBlockRoundtrip(t *testing.T) {
	data := makeSkewed(20_000)
	c, err := Encode(data)
	require.NoError(t, err)
	assert.Equal(t, 5, len(c.Blocks)) // ceil(20000/4096) = 5

	last := c.Blocks[len(c.Blocks)-1]
	assert.Equal(t, uint32(20_000%BlockSize), last.DecodedSize)

	out, err := Decode(c)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestSymbolConservation(t *testing.T) {
	data := makeSkewed(50_000)
	c, err := Encode(data)
	require.NoError(t, err)
	out, err := Decode(c)
	require.NoError(t, err)

	var wantCounts, gotCounts [256]int
	for _, b := range data {
		wantCounts[b]++
	}
	for _, b := range out {
		gotCounts[b]++
	}
	assert.Equal(t, wantCounts, gotCounts)
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	data := makeSkewed(9_000)
	c, err := Encode(data)
	require.NoError(t, err)

	b := c.Marshal()
	c2, err := Unmarshal(b)
	require.NoError(t, err)

	out, err := Decode(c2)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestUnmarshalBadMagic(t *testing.T) {
	data := makeSkewed(100)
	c, err := Encode(data)
	require.NoError(t, err)
	b := c.Marshal()
	b[0] ^= 0xFF

	_, err = Unmarshal(b)
	require.Error(t, err)
	var headerErr *HeaderError
	assert.ErrorAs(t, err, &headerErr)
}

func TestUnmarshalTruncated(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2, 3})
	require.Error(t, err)
	var truncated *TruncatedError
	assert.ErrorAs(t, err, &truncated)
}

func TestBuildTableEmpty(t *testing.T) {
	tab := BuildTable([256]uint32{})
	assert.Equal(t, uint32(ProbScale), tab.Symbols[0].Freq)
}

func TestBuildTableSkewed(t *testing.T) {
	var counts [256]uint32
	counts['a'] = 900
	counts['b'] = 50
	counts['c'] = 1
	tab := BuildTable(counts)

	var total uint32
	for _, s := range tab.Symbols {
		total += s.Freq
	}
	assert.Equal(t, uint32(ProbScale), total)
	assert.GreaterOrEqual(t, tab.Symbols['c'].Freq, uint32(1))
}

func TestRoundtripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 20_000).Draw(t, "data")
		c, err := Encode(data)
		require.NoError(t, err)
		out, err := Decode(c)
		require.NoError(t, err)
		require.Equal(t, data, out)
	})
}

func BenchmarkEncode(b *testing.B) {
	data := makeSkewed(1 << 20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Encode(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	data := makeSkewed(1 << 20)
	c, err := Encode(data)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(c); err != nil {
			b.Fatal(err)
		}
	}
}
