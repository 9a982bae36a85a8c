package mega

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFileKey() FileKey {
	return FileKey{
		Key:     uint128{hi: 0xA18D6D2C543E8782, lo: 0x249EEBA637EBCE2B},
		IV:      uint128{hi: 0xB6A231ECAE7C1D64, lo: 0},
		MetaMAC: 0xB1EAA2B0E0317E2F,
	}
}

func TestFileValidatorFeedChunkingIsAssociative(t *testing.T) {
	data := make([]byte, 300*1024)
	for i := range data {
		data[i] = byte(i * 7)
	}
	data = data[:len(data)-len(data)%16] // block-align for a clean comparison

	whole, err := NewFileValidator(testFileKey())
	require.NoError(t, err)
	whole.Feed(data)

	chunked, err := NewFileValidator(testFileKey())
	require.NoError(t, err)
	for i := 0; i < len(data); i += 777 {
		end := i + 777
		if end > len(data) {
			end = len(data)
		}
		chunked.Feed(data[i:end])
	}

	assert.Equal(t, whole.finalMAC(), chunked.finalMAC())
}

func TestFileValidatorTrailingBytesNotAuthenticated(t *testing.T) {
	base := make([]byte, 64)
	for i := range base {
		base[i] = byte(i)
	}

	v1, err := NewFileValidator(testFileKey())
	require.NoError(t, err)
	v1.Feed(base)

	withTrailer := append(append([]byte{}, base...), 1, 2, 3, 4, 5)
	v2, err := NewFileValidator(testFileKey())
	require.NoError(t, err)
	v2.Feed(withTrailer)

	assert.Equal(t, v1.finalMAC(), v2.finalMAC())
}

func TestFileValidatorDetectsTamper(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}

	v, err := NewFileValidator(testFileKey())
	require.NoError(t, err)
	v.Feed(data)
	mac := v.finalMAC()

	tampered := append([]byte{}, data...)
	tampered[0] ^= 0xFF
	vt, err := NewFileValidator(testFileKey())
	require.NoError(t, err)
	vt.Feed(tampered)

	assert.NotEqual(t, mac, vt.finalMAC())
}

func TestFileValidatorFinishReportsMismatch(t *testing.T) {
	v, err := NewFileValidator(testFileKey())
	require.NoError(t, err)
	v.Feed(make([]byte, 32))

	err = v.Finish(0xDEADBEEFDEADBEEF)
	require.Error(t, err)
	var mismatch *MacMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestNextChunkSizeProgression(t *testing.T) {
	delta := uint64(0)
	var sizes []uint64
	for i := 0; i < 6; i++ {
		delta, _ = nextChunkSize(delta)
		sizes = append(sizes, delta)
	}
	assert.Equal(t, []uint64{128 * 1024, 256 * 1024, 384 * 1024, 512 * 1024, 640 * 1024, 768 * 1024}, sizes)
}

func TestPlanChunksCapsAtOneMebibyte(t *testing.T) {
	plan := planChunks(8 * 1024 * 1024)
	var total int64
	for _, c := range plan {
		assert.LessOrEqual(t, c.size, int64(1024*1024))
		total += c.size
	}
	assert.Equal(t, int64(8*1024*1024), total)
}
