package mega

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Sizes and lengths for the two key schemas, per spec.md §3.
const (
	folderKeySize     = 16
	folderKeyBase64Len = 22

	fileKeySize     = 32
	fileKeyBase64Len = 43
)

var b64 = base64.RawURLEncoding

// FolderKey is a 128 bit AES key shared by every node under a public
// folder share.
//
// Grounded on mega/src/types/folder_key.rs.
type FolderKey uint128

func (k FolderKey) String() string {
	var buf [folderKeySize]byte
	k.putBytes(buf[:])
	return b64.EncodeToString(buf[:])
}

func (k FolderKey) putBytes(dst []byte) {
	binary.BigEndian.PutUint64(dst[0:8], uint64(k.hi))
	binary.BigEndian.PutUint64(dst[8:16], uint64(k.lo))
}

// ParseFolderKey decodes a 22-character unpadded base64url folder key.
func ParseFolderKey(s string) (FolderKey, error) {
	if len(s) != folderKeyBase64Len {
		return FolderKey{}, &KeyShapeError{Reason: fmt.Sprintf("invalid base64 length %d, expected %d", len(s), folderKeyBase64Len)}
	}
	raw, err := b64.DecodeString(s)
	if err != nil {
		return FolderKey{}, &KeyShapeError{Reason: "base64 decode failed", Err: err}
	}
	if len(raw) != folderKeySize {
		return FolderKey{}, &KeyShapeError{Reason: fmt.Sprintf("invalid key length %d, expected %d", len(raw), folderKeySize)}
	}
	return folderKeyFromBytes(raw), nil
}

func folderKeyFromBytes(raw []byte) FolderKey {
	return FolderKey{
		hi: binary.BigEndian.Uint64(raw[0:8]),
		lo: binary.BigEndian.Uint64(raw[8:16]),
	}
}

// FileKey is the triple (key, iv, meta_mac) embedded in a public file
// share URL's fragment.
//
// Grounded on mega/src/types/file_key.rs.
type FileKey struct {
	// Key is the 128 bit AES key used for both the CTR keystream and the
	// chunked CBC-MAC.
	Key uint128
	// IV is the CTR counter seed. Its low 64 bits are always zero; CTR
	// increments only the low half as it consumes 16-byte blocks.
	IV uint128
	// MetaMAC is the 64 bit authentication tag that the MAC recomputed
	// at end of stream is compared against.
	MetaMAC uint64
}

// ParseFileKey decodes a 43-character unpadded base64url file key.
func ParseFileKey(s string) (FileKey, error) {
	if len(s) != fileKeyBase64Len {
		return FileKey{}, &KeyShapeError{Reason: fmt.Sprintf("invalid base64 length %d, expected %d", len(s), fileKeyBase64Len)}
	}
	raw, err := b64.DecodeString(s)
	if err != nil {
		return FileKey{}, &KeyShapeError{Reason: "base64 decode failed", Err: err}
	}
	if len(raw) != fileKeySize {
		return FileKey{}, &KeyShapeError{Reason: fmt.Sprintf("invalid key length %d, expected %d", len(raw), fileKeySize)}
	}
	return fileKeyFromEncodedBytes(raw), nil
}

// fileKeyFromEncodedBytes splits the 32-byte blob into the eight
// big-endian u32 words w0..w7 described in spec.md §3 and recombines
// them per the obfuscated-key XOR layout.
func fileKeyFromEncodedBytes(raw []byte) FileKey {
	n1 := uint128{hi: binary.BigEndian.Uint64(raw[0:8]), lo: binary.BigEndian.Uint64(raw[8:16])}
	n2 := uint128{hi: binary.BigEndian.Uint64(raw[16:24]), lo: binary.BigEndian.Uint64(raw[24:32])}

	key := n1.xor(n2)
	ivHi := binary.BigEndian.Uint64(raw[16:24])
	iv := uint128{hi: ivHi, lo: 0}
	metaMAC := binary.BigEndian.Uint64(raw[24:32])

	return FileKey{Key: key, IV: iv, MetaMAC: metaMAC}
}

// toEncodedBytes is the inverse of fileKeyFromEncodedBytes: it
// reconstructs w4..w7 from IV and MetaMAC, then recovers w0..w3 from
// key XOR (w4..w7).
func (k FileKey) toEncodedBytes() [fileKeySize]byte {
	var buf [fileKeySize]byte
	binary.BigEndian.PutUint64(buf[16:24], k.IV.hi)
	binary.BigEndian.PutUint64(buf[24:32], k.MetaMAC)

	n2 := uint128{hi: binary.BigEndian.Uint64(buf[16:24]), lo: binary.BigEndian.Uint64(buf[24:32])}
	n1 := k.Key.xor(n2)
	binary.BigEndian.PutUint64(buf[0:8], n1.hi)
	binary.BigEndian.PutUint64(buf[8:16], n1.lo)

	return buf
}

func (k FileKey) String() string {
	buf := k.toEncodedBytes()
	return b64.EncodeToString(buf[:])
}

// FileOrFolderKey holds exactly one of a FileKey or a FolderKey. Its
// textual form is disambiguated purely by length.
//
// Grounded on mega/src/types/file_or_folder_key.rs; Go prefers an
// explicit tagged struct over an untyped union since there is no sum
// type in the language.
type FileOrFolderKey struct {
	file   *FileKey
	folder *FolderKey
}

// ParseFileOrFolderKey dispatches by input length: 22 is a folder key,
// 43 is a file key, anything else is rejected.
func ParseFileOrFolderKey(s string) (FileOrFolderKey, error) {
	switch len(s) {
	case fileKeyBase64Len:
		fk, err := ParseFileKey(s)
		if err != nil {
			return FileOrFolderKey{}, err
		}
		return FileOrFolderKey{file: &fk}, nil
	case folderKeyBase64Len:
		fk, err := ParseFolderKey(s)
		if err != nil {
			return FileOrFolderKey{}, err
		}
		return FileOrFolderKey{folder: &fk}, nil
	default:
		return FileOrFolderKey{}, &KeyShapeError{Reason: fmt.Sprintf("invalid key length %d, expected 22 or 43", len(s))}
	}
}

// IsFileKey reports whether this holds a FileKey.
func (k FileOrFolderKey) IsFileKey() bool { return k.file != nil }

// IsFolderKey reports whether this holds a FolderKey.
func (k FileOrFolderKey) IsFolderKey() bool { return k.folder != nil }

// AsFileKey returns the FileKey and true if this holds one.
func (k FileOrFolderKey) AsFileKey() (FileKey, bool) {
	if k.file == nil {
		return FileKey{}, false
	}
	return *k.file, true
}

// AsFolderKey returns the FolderKey and true if this holds one.
func (k FileOrFolderKey) AsFolderKey() (FolderKey, bool) {
	if k.folder == nil {
		return FolderKey{}, false
	}
	return *k.folder, true
}

// Key returns the raw 128 bit AES key regardless of which variant this
// holds.
func (k FileOrFolderKey) Key() uint128 {
	if k.file != nil {
		return k.file.Key
	}
	return uint128(*k.folder)
}

func (k FileOrFolderKey) String() string {
	if k.file != nil {
		return k.file.String()
	}
	return k.folder.String()
}

// NodeKind distinguishes the server-side node types carried by a
// FetchNodes response. Grounded on spec.md §3's Node.t enum.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeDirectory
	NodeRoot
	NodeInbox
	NodeTrashBin
)

// UnwrapNodeKey base64url-decodes the portion of a server-provided "k"
// string after its ":" separator, AES-128-ECB-decrypts it under
// folderKey (no padding), then reinterprets the result as either a
// FolderKey (directories) or a FileKey (files) per spec.md §4.1.
//
// Grounded on the teacher's AddFSNode key-unwrap dance (blockDecrypt +
// bytes_to_a32 + XOR) and mega-cli/src/commands/ls.rs's
// Node::decrypt_key call site.
func UnwrapNodeKey(wrappedB64 string, folderKey FolderKey, kind NodeKind) (FileOrFolderKey, error) {
	raw, err := b64.DecodeString(wrappedB64)
	if err != nil {
		return FileOrFolderKey{}, &KeyShapeError{Reason: "base64 decode of wrapped key failed", Err: err}
	}

	folderKeyBytes := make([]byte, folderKeySize)
	folderKey.putBytes(folderKeyBytes)
	plain, err := ecbDecrypt(folderKeyBytes, raw)
	if err != nil {
		return FileOrFolderKey{}, &CryptoError{Reason: "ecb decrypt of wrapped key failed", Err: err}
	}

	switch kind {
	case NodeDirectory:
		if len(plain) != folderKeySize {
			return FileOrFolderKey{}, &KeyShapeError{Reason: fmt.Sprintf("unwrapped directory key has length %d, expected %d", len(plain), folderKeySize)}
		}
		fk := folderKeyFromBytes(plain)
		return FileOrFolderKey{folder: &fk}, nil
	case NodeFile:
		if len(plain) != fileKeySize {
			return FileOrFolderKey{}, &KeyShapeError{Reason: fmt.Sprintf("unwrapped file key has length %d, expected %d", len(plain), fileKeySize)}
		}
		fk := fileKeyFromEncodedBytes(plain)
		return FileOrFolderKey{file: &fk}, nil
	default:
		return FileOrFolderKey{}, &KeyShapeError{Reason: "unwrap requested for a node kind other than file or directory"}
	}
}
