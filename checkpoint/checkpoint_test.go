package checkpoint

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splatgo/splatgo/blobstore"
	"github.com/splatgo/splatgo/gaussian"
)

func seededStore(t *testing.T, n int) *gaussian.Store {
	t.Helper()
	store, err := gaussian.Random(n, 2, 16, rand.New(rand.NewSource(17)))
	require.NoError(t, err)
	return store
}

func assertStoresEqual(t *testing.T, want, got *gaussian.Store) {
	t.Helper()
	require.Equal(t, want.Len(), got.Len())
	for _, attr := range gaussian.Attributes {
		assert.Equal(t, want.Column(attr), got.Column(attr), attr.String())
	}
}

func TestRoundTrip(t *testing.T) {
	codecs := map[string]Codec{"zstd": CodecZstd, "lz4": CodecLZ4}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			src := seededStore(t, 37)
			data, err := Encode(src, func(o *Options) { o.Codec = codec })
			require.NoError(t, err)

			dst, err := gaussian.NewStore(16)
			require.NoError(t, err)
			require.NoError(t, Decode(data, dst))
			assertStoresEqual(t, src, dst)
		})
	}
}

func TestDecodeResizesStore(t *testing.T) {
	src := seededStore(t, 5)
	data, err := Encode(src)
	require.NoError(t, err)

	// A target already holding more rows shrinks to the snapshot's count.
	dst := seededStore(t, 50)
	require.NoError(t, Decode(data, dst))
	assert.Equal(t, 5, dst.Len())
	assertStoresEqual(t, src, dst)
}

func TestDecodeEmptySnapshot(t *testing.T) {
	src, err := gaussian.NewStore(16)
	require.NoError(t, err)
	data, err := Encode(src)
	require.NoError(t, err)

	dst := seededStore(t, 3)
	require.NoError(t, Decode(data, dst))
	assert.Equal(t, 0, dst.Len())
}

func TestDecodeRejectsCorruption(t *testing.T) {
	src := seededStore(t, 10)
	data, err := Encode(src)
	require.NoError(t, err)

	dst, err := gaussian.NewStore(16)
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)/2] ^= 0xff
	assert.ErrorIs(t, Decode(flipped, dst), ErrCorrupted)
	assert.Equal(t, 0, dst.Len(), "store untouched on error")

	assert.ErrorIs(t, Decode(data[:8], dst), ErrTruncated)

	bogus := append([]byte(nil), data...)
	bogus[0] = 'X'
	assert.ErrorIs(t, Decode(bogus, dst), ErrInvalidMagic)
}

func TestDecodeCoeffMismatch(t *testing.T) {
	src := seededStore(t, 4)
	data, err := Encode(src)
	require.NoError(t, err)

	dst, err := gaussian.NewStore(9)
	require.NoError(t, err)

	var mismatch *ErrCoeffMismatch
	err = Decode(data, dst)
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 16, mismatch.Snapshot)
	assert.Equal(t, 9, mismatch.Store)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	src := seededStore(t, 21)

	require.NoError(t, Save(ctx, blobs, Name(75), src))

	names, err := blobs.List(ctx, "checkpoints/")
	require.NoError(t, err)
	assert.Equal(t, []string{"checkpoints/000000075"}, names)

	dst, err := gaussian.NewStore(16)
	require.NoError(t, err)
	require.NoError(t, Load(ctx, blobs, Name(75), dst))
	assertStoresEqual(t, src, dst)

	err = Load(ctx, blobs, Name(1), dst)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCodecString(t *testing.T) {
	assert.Equal(t, "zstd", CodecZstd.String())
	assert.Equal(t, "lz4", CodecLZ4.String())
	assert.Equal(t, "codec(9)", Codec(9).String())
}
