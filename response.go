package mega

import (
	"encoding/json"
	"fmt"
)

// Response is one entry of the array the `cs` endpoint returns — either a
// bare numeric ErrorCode or a typed body matching whichever Command it
// corresponds to by index.
//
// Grounded on src/types/response.rs's untagged `Response<T>` enum; Go's
// encoding/json has no untagged-enum decode, so Response is a tagged
// struct populated by peeking at the raw bytes (see decodeResponseArray).
type Response struct {
	err  *ErrorCode
	data ResponseData
}

// IsError reports whether this entry carries an ErrorCode rather than
// response data.
func (r Response) IsError() bool { return r.err != nil }

// Code returns the carried ErrorCode. Only meaningful if IsError is true.
func (r Response) Code() ErrorCode {
	if r.err == nil {
		return EOK
	}
	return *r.err
}

// Into returns the response data, or an *APIError if this entry carried
// a non-OK error code.
//
// Grounded on mega/src/types/response.rs-lineage Response::into_result.
func (r Response) Into() (ResponseData, error) {
	if r.err != nil {
		return nil, &APIError{Code: *r.err}
	}
	return r.data, nil
}

// ResponseData is the decoded body of a successful response entry. It is
// implemented by GetAttributesResponse and FetchNodesResponse.
//
// Grounded on mega/src/types/response.rs's `ResponseData` enum; spec.md
// §9 calls for a sum type here, and Go's nearest idiom for an open set of
// "the caller type-switches on this" shapes is a marker-method
// interface.
type ResponseData interface {
	isResponseData()
}

// GetAttributesResponse is the typed body of a `g` command.
//
// Grounded on spec.md §3's Response shape for `g` and
// other_examples/messages.go's DownloadResp.
type GetAttributesResponse struct {
	// Size is the file size in bytes.
	Size uint64 `json:"s"`
	// At is the base64url-encoded, AES-encrypted attribute blob.
	At string `json:"at"`
	// Msd is carried verbatim; its meaning is undocumented by MEGA (see
	// spec.md §9 Open Questions).
	Msd uint8 `json:"msd"`
	// DownloadURL is present only when the command set g:1.
	DownloadURL *string `json:"g,omitempty"`
}

func (GetAttributesResponse) isResponseData() {}

// DecodeAttributes decrypts and parses this response's `at` blob under
// key — for a public file URL, the FileKey's Key field.
func (r GetAttributesResponse) DecodeAttributes(key uint128) (Attributes, error) {
	return decryptAttributes(r.At, key)
}

// FetchNodesResponse is the typed body of an `f` command.
type FetchNodesResponse struct {
	Files []Node `json:"f"`
	// SharedKeys carries owner-keyed shared-folder keys; preserved
	// verbatim, not acted on by this client (no sharing/mutation in
	// scope per spec.md §1 Non-goals).
	SharedKeys []SharedKey `json:"ok,omitempty"`
	// Sn is an opaque sequence/state token for incremental sync;
	// preserved verbatim per spec.md §9.
	Sn string `json:"sn,omitempty"`
}

func (FetchNodesResponse) isResponseData() {}

// SharedKey is one entry of a FetchNodes response's "ok" array.
type SharedKey struct {
	Hash string `json:"h"`
	Key  string `json:"k"`
}

// Node is one server-side filesystem entry.
//
// Grounded on spec.md §3's Node shape and other_examples/messages.go's
// FSNode.
type Node struct {
	ID       string   `json:"h"`
	ParentID string   `json:"p"`
	Owner    string    `json:"u"`
	Kind     NodeKind `json:"t"`
	Attr     string   `json:"a"`
	Key      string   `json:"k"`
	Size     int64    `json:"s"`
	Ts       int64    `json:"ts"`

	// SharedOwner/SharedKey are present on the roots of shares owned by
	// other users. Preserved, not interpreted — sharing is a Non-goal.
	SharedOwner string `json:"su,omitempty"`
	SharedKey   string `json:"sk,omitempty"`

	// FileAttr ("fa") names attachments like thumbnails; preserved
	// verbatim per spec.md §9 Open Questions.
	FileAttr string `json:"fa,omitempty"`
}

// DecryptKey unwraps this node's unobfuscated key under the folder's
// key. It fails with KeyShapeError if the node's kind is neither File nor
// Directory.
//
// Grounded on mega-cli/src/commands/ls.rs's Node::decrypt_key call site.
func (n Node) DecryptKey(folderKey FolderKey) (FileOrFolderKey, error) {
	wrapped, _, ok := cutOwnerPrefix(n.Key)
	if !ok {
		return FileOrFolderKey{}, &KeyShapeError{Reason: fmt.Sprintf("node key %q is missing an owner prefix", n.Key)}
	}
	return UnwrapNodeKey(wrapped, folderKey, n.Kind)
}

// DecodeAttributes unwraps this node's key under folderKey and decrypts
// its attribute blob (primarily the file/folder name).
//
// Grounded on mega-cli/src/commands/ls.rs's Node::decode_attributes call
// site.
func (n Node) DecodeAttributes(folderKey FolderKey) (Attributes, error) {
	key, err := n.DecryptKey(folderKey)
	if err != nil {
		return Attributes{}, err
	}
	return decryptAttributes(n.Attr, key.Key())
}

// cutOwnerPrefix splits a node "k" string of the form "<owner>:<wrapped>"
// and returns the wrapped portion.
func cutOwnerPrefix(k string) (wrapped string, owner string, ok bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == ':' {
			return k[i+1:], k[:i], true
		}
	}
	return "", "", false
}

// decodeResponseArray decodes the `cs` endpoint's top-level JSON array.
// Each entry is either a bare number (ErrorCode) or an object whose shape
// is determined by the Command at the same index.
func decodeResponseArray(raw []byte, commands []Command) ([]Response, error) {
	var rawEntries []json.RawMessage
	if err := json.Unmarshal(raw, &rawEntries); err != nil {
		return nil, &ResponseShapeError{Reason: "top level response was not a json array: " + err.Error()}
	}

	responses := make([]Response, len(rawEntries))
	for i, entry := range rawEntries {
		var code int64
		if err := json.Unmarshal(entry, &code); err == nil {
			ec := ErrorCode(code)
			responses[i] = Response{err: &ec}
			continue
		}

		var kind commandKind
		if i < len(commands) {
			kind = commands[i].kind
		}

		switch kind {
		case commandGetAttributes:
			var body GetAttributesResponse
			if err := json.Unmarshal(entry, &body); err != nil {
				return nil, &ResponseShapeError{Reason: "failed to decode GetAttributes response: " + err.Error()}
			}
			responses[i] = Response{data: body}
		case commandFetchNodes:
			var body FetchNodesResponse
			if err := json.Unmarshal(entry, &body); err != nil {
				return nil, &ResponseShapeError{Reason: "failed to decode FetchNodes response: " + err.Error()}
			}
			responses[i] = Response{data: body}
		default:
			return nil, &ResponseShapeError{Reason: "response entry has no corresponding command to determine its shape"}
		}
	}

	return responses, nil
}

// soleError reports whether raw is a single top-level numeric error code
// rather than an array, e.g. the body MEGA sends when the batch request
// itself is rejected before being split into per-command entries.
func soleError(raw []byte) (ErrorCode, bool) {
	var code int64
	if err := json.Unmarshal(raw, &code); err != nil {
		return 0, false
	}
	return ErrorCode(code), true
}
