// Package checkpoint serializes the point store to durable snapshots: a
// fixed header with the declared row count, per-attribute columns in a
// compressed payload, and a CRC32-Castagnoli trailer. Loading resizes the
// target store to the snapshot's row count before copying.
package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/splatgo/splatgo/blobstore"
	"github.com/splatgo/splatgo/gaussian"
)

const (
	// Magic identifies snapshot blobs (ASCII "SPL1").
	Magic uint32 = 0x53504C31

	// Version is the current snapshot format version.
	Version uint32 = 1

	// headerSize covers magic, version, codec, row count and coefficient
	// count. All fields little-endian.
	headerSize = 4 + 4 + 4 + 8 + 4

	trailerSize = 4
)

var (
	// ErrInvalidMagic is returned for blobs that are not snapshots.
	ErrInvalidMagic = errors.New("checkpoint: invalid magic number")

	// ErrUnsupportedVersion is returned for snapshots from a newer format.
	ErrUnsupportedVersion = errors.New("checkpoint: unsupported format version")

	// ErrCorrupted is returned when the checksum does not match.
	ErrCorrupted = errors.New("checkpoint: corrupted snapshot (checksum mismatch)")

	// ErrTruncated is returned when a blob is too short for its header.
	ErrTruncated = errors.New("checkpoint: truncated snapshot")
)

// ErrUnknownCodec is returned for unrecognized compression identifiers.
type ErrUnknownCodec struct {
	Codec Codec
}

func (e *ErrUnknownCodec) Error() string {
	return fmt.Sprintf("checkpoint: unknown codec %d", uint32(e.Codec))
}

// ErrCoeffMismatch is returned when a snapshot's color layout does not fit
// the target store.
type ErrCoeffMismatch struct {
	Snapshot, Store int
}

func (e *ErrCoeffMismatch) Error() string {
	return fmt.Sprintf("checkpoint: snapshot has %d SH coefficients, store has %d", e.Snapshot, e.Store)
}

// crc32cTable is pre-computed for the Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Options configures snapshot encoding.
type Options struct {
	// Codec selects the payload compression.
	Codec Codec
}

// DefaultOptions returns zstd compression.
func DefaultOptions() Options {
	return Options{Codec: CodecZstd}
}

// Encode serializes the store into a snapshot blob.
func Encode(store *gaussian.Store, optFns ...func(*Options)) ([]byte, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	n := store.Len()
	var payloadLen int
	for _, attr := range gaussian.Attributes {
		payloadLen += n * store.Width(attr) * 4
	}
	payload := make([]byte, 0, payloadLen)
	for _, attr := range gaussian.Attributes {
		col := store.Column(attr)
		for _, v := range col {
			payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
		}
	}

	compressed, err := compress(opts.Codec, payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(compressed)+trailerSize)
	binary.LittleEndian.PutUint32(out[0:4], Magic)
	binary.LittleEndian.PutUint32(out[4:8], Version)
	binary.LittleEndian.PutUint32(out[8:12], uint32(opts.Codec))
	binary.LittleEndian.PutUint64(out[12:20], uint64(n))
	binary.LittleEndian.PutUint32(out[20:24], uint32(store.NumCoeffs()))
	out = append(out, compressed...)

	sum := crc32.Checksum(out, crc32cTable)
	out = binary.LittleEndian.AppendUint32(out, sum)
	return out, nil
}

// Decode loads a snapshot into the store, resizing it to the snapshot's row
// count first. On any error the store is left untouched.
func Decode(data []byte, store *gaussian.Store) error {
	if len(data) < headerSize+trailerSize {
		return ErrTruncated
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v > Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	body := data[:len(data)-trailerSize]
	want := binary.LittleEndian.Uint32(data[len(data)-trailerSize:])
	if crc32.Checksum(body, crc32cTable) != want {
		return ErrCorrupted
	}

	codec := Codec(binary.LittleEndian.Uint32(data[8:12]))
	rows := int(binary.LittleEndian.Uint64(data[12:20]))
	numCoeffs := int(binary.LittleEndian.Uint32(data[20:24]))
	if numCoeffs != store.NumCoeffs() {
		return &ErrCoeffMismatch{Snapshot: numCoeffs, Store: store.NumCoeffs()}
	}

	payload, err := decompress(codec, body[headerSize:])
	if err != nil {
		return err
	}

	var wantLen int
	for _, attr := range gaussian.Attributes {
		wantLen += rows * store.Width(attr) * 4
	}
	if len(payload) != wantLen {
		return ErrCorrupted
	}

	store.Resize(rows)
	off := 0
	for _, attr := range gaussian.Attributes {
		col := store.Column(attr)
		for i := range col {
			col[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		}
	}
	return nil
}

// Save encodes the store and writes it to the blob store under name.
func Save(ctx context.Context, blobs blobstore.Store, name string, store *gaussian.Store, optFns ...func(*Options)) error {
	data, err := Encode(store, optFns...)
	if err != nil {
		return err
	}
	return blobs.Put(ctx, name, data)
}

// Load reads a snapshot blob and decodes it into the store.
func Load(ctx context.Context, blobs blobstore.Store, name string, store *gaussian.Store) error {
	data, err := blobs.Get(ctx, name)
	if err != nil {
		return err
	}
	return Decode(data, store)
}

// Name returns the canonical blob name for a training step's snapshot.
func Name(step int) string {
	return fmt.Sprintf("checkpoints/%09d", step)
}
