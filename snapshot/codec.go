package snapshot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	ErrUnknownCodec = errors.New("unknown snapshot codec")
	ErrBadMagic     = errors.New("not a digest snapshot")
	ErrCorrupted    = errors.New("corrupted snapshot")
)

type Codec uint8

const (
	CodecNone Codec = 0
	CodecZstd Codec = 1
	CodecLZ4  Codec = 2
)

func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDigestBytes))
}

// lz4 blocks expand at most about 255 times.
const lz4MaxExpansion = 256

// compress returns the codec actually used, lz4 falls back to none for
// incompressible payloads.
func compress(data []byte, codec Codec) ([]byte, Codec, error) {
	switch codec {
	case CodecNone:
		return data, CodecNone, nil
	case CodecZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, codec, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), CodecZstd, nil
	case CodecLZ4:
		compressed := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, compressed, nil)
		if err != nil {
			return nil, codec, err
		}
		if n == 0 {
			return data, CodecNone, nil
		}
		return compressed[:n], CodecLZ4, nil
	default:
		return nil, codec, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
}

func decompress(payload []byte, codec Codec, size int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(payload) != size {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupted, size, len(payload))
		}
		return payload, nil
	case CodecZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		if len(decoded) != size {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupted, size, len(decoded))
		}
		return decoded, nil
	case CodecLZ4:
		if size > lz4MaxExpansion*(len(payload)+1) {
			return nil, fmt.Errorf("%w: %d bytes cannot expand to %d", ErrCorrupted, len(payload), size)
		}
		decoded := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, decoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		if n != size {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupted, size, n)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
}
