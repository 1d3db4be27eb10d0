package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"quantiles/metrics/tdigest"
)

// A snapshot is the magic, one codec byte, the uncompressed digest size as
// little endian uint32 and the compressed digest.
var magic = [4]byte{'T', 'D', 'G', '1'}

const headerSize = len(magic) + 1 + 4

const (
	// MaxDigestBytes bounds the uncompressed digest, about four million
	// centroids.
	MaxDigestBytes = 64 << 20

	digestHeaderBytes   = 48
	digestCentroidBytes = 16
)

func Write(w io.Writer, digest *tdigest.TDigest, codec Codec) error {
	data, err := digest.MarshalBinary()
	if err != nil {
		return err
	}
	if len(data) > MaxDigestBytes {
		return fmt.Errorf("digest of %d bytes is over snapshot limit %d", len(data), MaxDigestBytes)
	}
	payload, used, err := compress(data, codec)
	if err != nil {
		return err
	}

	header := make([]byte, 0, headerSize)
	header = append(header, magic[:]...)
	header = append(header, byte(used))
	header = binary.LittleEndian.AppendUint32(header, uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// Read decodes a snapshot. Only the Randomizer option applies to the digest.
func Read(r io.Reader, opts ...tdigest.Option) (*tdigest.TDigest, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(content) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadMagic, len(content))
	}
	if [4]byte(content[:4]) != magic {
		return nil, ErrBadMagic
	}

	codec := Codec(content[4])
	size := int(binary.LittleEndian.Uint32(content[5:headerSize]))
	if err := checkDigestSize(size); err != nil {
		return nil, err
	}
	data, err := decompress(content[headerSize:], codec, size)
	if err != nil {
		return nil, err
	}
	return tdigest.FromBytes(data, opts...)
}

func checkDigestSize(size int) error {
	if size < digestHeaderBytes || (size-digestHeaderBytes)%digestCentroidBytes != 0 {
		return fmt.Errorf("%w: %d bytes is no digest size", ErrCorrupted, size)
	}
	if size > MaxDigestBytes {
		return fmt.Errorf("%w: digest of %d bytes is over %d", ErrCorrupted, size, MaxDigestBytes)
	}
	return nil
}

func WriteFile(path string, digest *tdigest.TDigest, codec Codec) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, digest, codec); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func ReadFile(path string, opts ...tdigest.Option) (*tdigest.TDigest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file, opts...)
}
