// Package mans wires the ADM and PANS coders together behind the block-range dispatcher
// and the one-byte codec tag that makes a MANS container self-describing.
package mans

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ha1tch/mans/pkg/adm"
	"github.com/ha1tch/mans/pkg/pans"
)

const (
	codecADMThenPANS = 1
	codecPANSOnly    = 2
)

func dispatch[T adm.Element](elements []T, threshold uint64) byte {
	var maxDiff uint64
	for start := 0; start < len(elements); start += adm.GroupSize {
		end := min(start+adm.GroupSize, len(elements))
		window := elements[start:end]
		mn, mx := window[0], window[0]
		for _, v := range window {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		diff := uint64(mx) - uint64(mn)
		if diff > maxDiff {
			maxDiff = diff
		}
		if maxDiff > threshold {
			break
		}
	}
	if maxDiff <= threshold {
		return codecADMThenPANS
	}
	return codecPANSOnly
}

func elemSize[T adm.Element]() int {
	var zero T
	if _, ok := any(zero).(uint32); ok {
		return 4
	}
	return 2
}

func elementsToBytes[T adm.Element](elements []T) []byte {
	es := elemSize[T]()
	buf := make([]byte, len(elements)*es)
	for i, v := range elements {
		switch vv := any(v).(type) {
		case uint16:
			binary.LittleEndian.PutUint16(buf[i*es:], vv)
		case uint32:
			binary.LittleEndian.PutUint32(buf[i*es:], vv)
		}
	}
	return buf
}

func bytesToElements[T adm.Element](op string, data []byte) ([]T, error) {
	es := elemSize[T]()
	if len(data)%es != 0 {
		return nil, newError(op, KindBadHeader, fmt.Errorf("byte length %d not a multiple of element size %d", len(data), es))
	}
	n := len(data) / es
	out := make([]T, n)
	var zero T
	for i := range out {
		switch any(zero).(type) {
		case uint16:
			out[i] = T(binary.LittleEndian.Uint16(data[i*es:]))
		case uint32:
			out[i] = T(binary.LittleEndian.Uint32(data[i*es:]))
		}
	}
	return out, nil
}

func translatePANSErr(op string, err error) error {
	var trunc *pans.TruncatedError
	if errors.As(err, &trunc) {
		return newError(op, KindTruncated, err)
	}
	var bad *pans.HeaderError
	if errors.As(err, &bad) {
		return newError(op, KindBadHeader, err)
	}
	return newError(op, KindBadHeader, err)
}

func translateADMErr(op string, err error) error {
	var trunc *adm.TruncatedError
	if errors.As(err, &trunc) {
		return newError(op, KindTruncated, err)
	}
	var bad *adm.HeaderError
	if errors.As(err, &bad) {
		return newError(op, KindBadHeader, err)
	}
	return newError(op, KindBadHeader, err)
}

// CompressElements runs the dispatcher and the two coding stages over an already-typed
// element slice, returning the framed [codec_tag | PANS container] bytes. An empty input
// yields an empty output, never an error.
func CompressElements[T adm.Element](params Params, elements []T) ([]byte, error) {
	if params.Backend == BackendNVIDIA {
		return nil, newError("compress", KindBadHeader, errors.New("nvidia backend not implemented"))
	}
	if len(elements) == 0 {
		return []byte{}, nil
	}

	codec := dispatch(elements, params.ADMThreshold)

	var pansInput []byte
	if codec == codecADMThenPANS {
		admContainer, err := adm.Encode(elements)
		if err != nil {
			return nil, newError("compress", KindBadHeader, err)
		}
		pansInput = admContainer.Marshal()
	} else {
		pansInput = elementsToBytes(elements)
	}

	pansContainer, err := pans.Encode(pansInput)
	if err != nil {
		return nil, newError("compress", KindBadHeader, err)
	}
	payload := pansContainer.Marshal()

	out := make([]byte, 1+len(payload))
	out[0] = codec
	copy(out[1:], payload)
	return out, nil
}

// DecompressElements reverses CompressElements for the declared element width T.
func DecompressElements[T adm.Element](params Params, data []byte) ([]T, error) {
	if params.Backend == BackendNVIDIA {
		return nil, newError("decompress", KindBadHeader, errors.New("nvidia backend not implemented"))
	}
	if len(data) == 0 {
		return []T{}, nil
	}

	codec := data[0]
	if codec != codecADMThenPANS && codec != codecPANSOnly {
		return nil, newError("decompress", KindBadCodec, fmt.Errorf("codec tag %d", codec))
	}

	pansContainer, err := pans.Unmarshal(data[1:])
	if err != nil {
		return nil, translatePANSErr("decompress", err)
	}
	decoded, err := pans.Decode(pansContainer)
	if err != nil {
		return nil, translatePANSErr("decompress", err)
	}

	if codec == codecPANSOnly {
		return bytesToElements[T]("decompress", decoded)
	}

	admContainer, err := adm.Unmarshal[T](decoded)
	if err != nil {
		return nil, translateADMErr("decompress", err)
	}
	return adm.Decode(admContainer)
}

// Compress is the library entry point matching the external interface in full: it takes
// the raw little-endian byte image of the element array and the declared element type,
// and returns the framed MANS container.
func Compress(params Params, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return []byte{}, nil
	}
	switch params.ElementType {
	case U32:
		elements, err := bytesToElements[uint32]("compress", raw)
		if err != nil {
			return nil, err
		}
		return CompressElements(params, elements)
	default:
		elements, err := bytesToElements[uint16]("compress", raw)
		if err != nil {
			return nil, err
		}
		return CompressElements(params, elements)
	}
}

// Decompress is the library entry point returning the little-endian byte image of the
// decoded element array, per the declared element type in params.
func Decompress(params Params, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	switch params.ElementType {
	case U32:
		elements, err := DecompressElements[uint32](params, data)
		if err != nil {
			return nil, err
		}
		return elementsToBytes(elements), nil
	default:
		elements, err := DecompressElements[uint16](params, data)
		if err != nil {
			return nil, err
		}
		return elementsToBytes(elements), nil
	}
}
