package mega

import (
	"crypto/aes"
	"encoding/binary"
)

// cipher128 is the minimal surface FileValidator needs from an AES
// block cipher: encrypt one 16 byte block in place.
type cipher128 interface {
	Encrypt(dst, src []byte)
}

// FileValidator incrementally recomputes a file's chunked AES-128-CBC-MAC
// as plaintext bytes are fed to it, for comparison against the FileKey's
// meta_mac once the stream ends.
//
// Grounded directly on mega/src/file_validator.rs's FileValidator; Go has
// no single-block CBC-encrypt-in-place primitive exposed the way the
// original's cbc::Encryptor is, so each fold step below uses a raw
// block.Encrypt call on one 16 byte block, which is exactly what CBC
// encryption with a zero IV reduces to for a single block.
type FileValidator struct {
	block cipher128

	seedIV      uint64
	chunkDelta  uint64
	leftInChunk uint64

	fileMAC  uint128
	chunkMAC uint128

	buf    [16]byte
	bufLen int
}

// NewFileValidator creates a validator seeded from key's IV, per
// create_chunk_mac in the original.
func NewFileValidator(key FileKey) (*FileValidator, error) {
	keyBytes := make([]byte, 16)
	putUint128(keyBytes, key.Key)
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, &CryptoError{Reason: "failed to create validator cipher", Err: err}
	}

	v := &FileValidator{
		block:  block,
		seedIV: key.IV.hi,
	}
	v.chunkMAC = v.seedChunkMAC()
	v.chunkDelta, v.leftInChunk = nextChunkSize(0)
	return v, nil
}

// seedChunkMAC reseeds the per-chunk MAC from the file's IV: its high 64
// bits repeated twice, per create_chunk_mac in the original.
func (v *FileValidator) seedChunkMAC() uint128 {
	return uint128{hi: v.seedIV, lo: v.seedIV}
}

// nextChunkSize advances the deterministic chunk-size progression
// min(prevDelta+128KiB, 1MiB).
//
// Grounded on file_validator.rs's ChunkIter: delta grows by 128KiB per
// call, capped at 1MiB.
func nextChunkSize(prevDelta uint64) (delta uint64, left uint64) {
	const step = 128 * 1024
	const cap = 1024 * 1024
	delta = prevDelta + step
	if delta > cap {
		delta = cap
	}
	return delta, delta
}

func (v *FileValidator) encryptBlock(x uint128) uint128 {
	var buf [16]byte
	putUint128(buf[:], x)
	var out [16]byte
	v.block.Encrypt(out[:], buf[:])
	return blockFromBytes(out)
}

func blockFromBytes(b [16]byte) uint128 {
	return uint128{
		hi: binary.BigEndian.Uint64(b[0:8]),
		lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

func (v *FileValidator) processBlock(block [16]byte) {
	v.chunkMAC = v.chunkMAC.xor(blockFromBytes(block))
	v.chunkMAC = v.encryptBlock(v.chunkMAC)

	v.leftInChunk -= 16
	if v.leftInChunk == 0 {
		v.beginNewChunk()
	}
}

func (v *FileValidator) beginNewChunk() {
	v.fileMAC = v.fileMAC.xor(v.chunkMAC)
	v.fileMAC = v.encryptBlock(v.fileMAC)

	v.chunkMAC = v.seedChunkMAC()
	v.chunkDelta, v.leftInChunk = nextChunkSize(v.chunkDelta)
}

// Feed processes decrypted plaintext bytes. Bytes that do not complete a
// 16 byte block are buffered until either more data arrives or Finish is
// called, at which point any such trailing remainder is deliberately
// left out of the MAC, per spec.md §4.5.3.
func (v *FileValidator) Feed(input []byte) {
	if v.bufLen != 0 {
		need := len(v.buf) - v.bufLen
		n := need
		if len(input) < n {
			n = len(input)
		}
		copy(v.buf[v.bufLen:v.bufLen+n], input[:n])
		if n < need {
			v.bufLen += n
			return
		}
		v.processBlock(v.buf)
		input = input[need:]
		v.bufLen = 0
	}

	for len(input) >= 16 {
		var block [16]byte
		copy(block[:], input[:16])
		v.processBlock(block)
		input = input[16:]
	}

	if len(input) > 0 {
		v.bufLen = copy(v.buf[:], input)
	}
}

// finalMAC folds the final partial chunk and compresses the resulting
// 128 bit MAC into the 64 bit tag MEGA actually carries.
func (v *FileValidator) finalMAC() uint64 {
	fileMAC := v.fileMAC.xor(v.chunkMAC)
	fileMAC = v.encryptBlock(fileMAC)

	var macBytes [16]byte
	putUint128(macBytes[:], fileMAC)

	w0 := binary.BigEndian.Uint32(macBytes[0:4])
	w1 := binary.BigEndian.Uint32(macBytes[4:8])
	w2 := binary.BigEndian.Uint32(macBytes[8:12])
	w3 := binary.BigEndian.Uint32(macBytes[12:16])

	var finalBytes [8]byte
	binary.BigEndian.PutUint32(finalBytes[0:4], w0^w1)
	binary.BigEndian.PutUint32(finalBytes[4:8], w2^w3)
	return binary.BigEndian.Uint64(finalBytes[:])
}

// Finish compares the compressed MAC against expected. Trailing buffered
// bytes (fewer than 16) are intentionally not folded in, matching
// finish() in the original.
func (v *FileValidator) Finish(expected uint64) error {
	final := v.finalMAC()
	if final != expected {
		var expectedBytes, actualBytes [8]byte
		binary.BigEndian.PutUint64(expectedBytes[:], expected)
		binary.BigEndian.PutUint64(actualBytes[:], final)
		return &MacMismatchError{Expected: expectedBytes, Actual: actualBytes}
	}
	return nil
}
