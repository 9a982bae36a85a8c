package mega

import (
	"crypto/aes"
	"fmt"
)

// ecbDecrypt decrypts src in AES-128-ECB mode (block-by-block, no
// chaining, no padding) under key. MEGA uses this exact construction to
// wrap per-node keys; node attributes use CBC with a zero IV instead (see
// attrs.go).
//
// Grounded on other_examples' go-mega utils.go blockDecrypt/blockEncrypt,
// which implement ECB by looping cipher.Block.Decrypt across 16 byte
// blocks directly since the stdlib has no ECB mode (by design — it is
// rarely what callers want outside of protocols like this one that
// require it bit-for-bit).
func ecbDecrypt(key, src []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(src)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(src))
	}
	dst := make([]byte, len(src))
	for i := 0; i < len(src); i += block.BlockSize() {
		block.Decrypt(dst[i:i+block.BlockSize()], src[i:i+block.BlockSize()])
	}
	return dst, nil
}

// ecbEncrypt is the encryption counterpart of ecbDecrypt.
func ecbEncrypt(key, src []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(src)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("plaintext length %d is not a multiple of the block size", len(src))
	}
	dst := make([]byte, len(src))
	for i := 0; i < len(src); i += block.BlockSize() {
		block.Encrypt(dst[i:i+block.BlockSize()], src[i:i+block.BlockSize()])
	}
	return dst, nil
}
