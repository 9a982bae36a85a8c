package mega

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Attributes is the plaintext JSON object carried inside a node's
// encrypted "a"/"at" attribute blob. Name is required; AdditionalFields
// preserves any other keys MEGA may add in the future without this
// client needing to know their shape up front.
//
// Grounded on spec.md §3's "Plaintext attributes" and
// other_examples/messages.go's FileAttr.
type Attributes struct {
	Name string `json:"n"`
	// AdditionalFields holds any keys beyond "n" the blob carried,
	// keeping forward compatibility with attributes this client does
	// not otherwise understand.
	AdditionalFields map[string]json.RawMessage `json:"-"`
}

const attrPrefix = "MEGA"

// decryptAttributes implements spec.md §4.3: base64url-decode, AES-128-
// CBC decrypt with a zero IV and zero padding (no unpadding), require the
// literal "MEGA" prefix, then JSON-decode the remainder.
//
// Grounded on other_examples' go-mega utils.go decryptAttr.
func decryptAttributes(at string, key uint128) (Attributes, error) {
	raw, err := b64.DecodeString(at)
	if err != nil {
		return Attributes{}, &CryptoError{Reason: "base64 decode failed", Err: err}
	}
	if len(raw)%aes.BlockSize != 0 {
		return Attributes{}, &CryptoError{Reason: "attribute ciphertext is not block aligned"}
	}

	keyBytes := make([]byte, 16)
	putUint128(keyBytes, key)
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return Attributes{}, &CryptoError{Reason: "failed to create cipher", Err: err}
	}

	plain := make([]byte, len(raw))
	var zeroIV [aes.BlockSize]byte
	cipher.NewCBCDecrypter(block, zeroIV[:]).CryptBlocks(plain, raw)

	if !utf8.Valid(plain) {
		return Attributes{}, &CryptoError{Reason: "decrypted attribute blob is not valid utf-8"}
	}
	if !strings.HasPrefix(string(plain), attrPrefix) {
		return Attributes{}, &CryptoError{Reason: `decrypted attribute blob is missing the "MEGA" prefix`}
	}
	body := strings.TrimRight(string(plain[len(attrPrefix):]), "\x00")

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return Attributes{}, &CryptoError{Reason: "failed to parse attribute json", Err: err}
	}

	attrs := Attributes{AdditionalFields: fields}
	if nameRaw, ok := fields["n"]; ok {
		if err := json.Unmarshal(nameRaw, &attrs.Name); err != nil {
			return Attributes{}, &CryptoError{Reason: "failed to parse attribute name", Err: err}
		}
		delete(attrs.AdditionalFields, "n")
	}

	return attrs, nil
}

// encryptAttributes is the inverse of decryptAttributes. It is not
// reachable from any public API (upload is a Non-goal — spec.md §1) but
// is kept as an internal helper exercised directly by tests to pin down
// the encoding this client must be able to decode, the same round-trip
// property spec.md §8 Invariant 1 asks of the key codec.
func encryptAttributes(attrs Attributes, key uint128) (string, error) {
	body, err := json.Marshal(struct {
		Name string `json:"n"`
	}{Name: attrs.Name})
	if err != nil {
		return "", err
	}

	plain := append([]byte(attrPrefix), body...)
	if rem := len(plain) % aes.BlockSize; rem != 0 {
		plain = append(plain, make([]byte, aes.BlockSize-rem)...)
	}

	keyBytes := make([]byte, 16)
	putUint128(keyBytes, key)
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", err
	}

	out := make([]byte, len(plain))
	var zeroIV [aes.BlockSize]byte
	cipher.NewCBCEncrypter(block, zeroIV[:]).CryptBlocks(out, plain)

	return b64.EncodeToString(out), nil
}

func putUint128(dst []byte, v uint128) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v.hi >> (56 - 8*i))
	}
	for i := 0; i < 8; i++ {
		dst[8+i] = byte(v.lo >> (56 - 8*i))
	}
}
