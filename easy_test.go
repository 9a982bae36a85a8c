package mega

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEasyClient(t *testing.T, handler http.HandlerFunc) *EasyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEasyClient(WithAPIURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestEasyClientGetAttributesRequiresExactlyOneID(t *testing.T) {
	e := newTestEasyClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	_, err := e.GetAttributes(context.Background(), GetAttributesBuilder{})
	require.Error(t, err)

	_, err = e.GetAttributes(context.Background(), GetAttributesBuilder{PublicFileID: "a", NodeID: "b"})
	require.Error(t, err)
}

func TestEasyClientGetAttributesDecodesName(t *testing.T) {
	key := uint128{hi: 0x0011223344556677, lo: 0x8899AABBCCDDEEFF}
	encodedAttr, err := encryptAttributes(Attributes{Name: "Doxygen_docs.zip"}, key)
	require.NoError(t, err)

	e := newTestEasyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal([]GetAttributesResponse{{Size: 1024, At: encodedAttr}})
		w.Write(body)
	})

	resp, err := e.GetAttributes(context.Background(), GetAttributesBuilder{PublicFileID: "7glwEQBT"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), resp.Size)

	attrs, err := resp.DecodeAttributes(key)
	require.NoError(t, err)
	assert.Equal(t, "Doxygen_docs.zip", attrs.Name)
}

func TestEasyClientFetchNodesS3(t *testing.T) {
	folderKey, err := ParseFolderKey("xsXXTpoYEFDRQdeHPDrv7A")
	require.NoError(t, err)

	names := []string{"test", "test.txt", "testfolder"}
	var nodes []Node
	for i, name := range names {
		attr, encErr := encryptAttributes(Attributes{Name: name}, uint128(folderKey))
		require.NoError(t, encErr)
		nodes = append(nodes, Node{
			ID:    string(rune('a' + i)),
			Kind:  NodeDirectory,
			Attr:  attr,
			Key:   "owner:" + wrappedFolderKeyForTest(t, folderKey),
		})
	}

	e := newTestEasyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal([]FetchNodesResponse{{Files: nodes}})
		w.Write(body)
	})

	resp, err := e.FetchNodes(context.Background(), "MWsm3aBL", true)
	require.NoError(t, err)
	require.Len(t, resp.Files, 3)

	var gotNames []string
	for _, n := range resp.Files {
		attrs, decErr := n.DecodeAttributes(folderKey)
		require.NoError(t, decErr)
		gotNames = append(gotNames, attrs.Name)
	}
	assert.ElementsMatch(t, names, gotNames)
}

func TestEasyClientResolveURLFindsRootByKindNotPublicID(t *testing.T) {
	folderKey, err := ParseFolderKey("xsXXTpoYEFDRQdeHPDrv7A")
	require.NoError(t, err)

	rootAttr, err := encryptAttributes(Attributes{Name: "root"}, uint128(folderKey))
	require.NoError(t, err)
	childAttr, err := encryptAttributes(Attributes{Name: "child"}, uint128(folderKey))
	require.NoError(t, err)

	nodes := []Node{
		{
			ID:   "internalRootID",
			Kind: NodeRoot,
			Attr: rootAttr,
			Key:  wrappedFolderKeyForTest(t, folderKey),
		},
		{
			ID:       "internalChildID",
			ParentID: "internalRootID",
			Kind:     NodeDirectory,
			Attr:     childAttr,
			Key:      wrappedFolderKeyForTest(t, folderKey),
		},
	}

	e := newTestEasyClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal([]FetchNodesResponse{{Files: nodes}})
		w.Write(body)
	})

	// "MWsm3aBL" is the public folder id from the share URL. It must never
	// equal any node's internal id, including the root's.
	parsed, err := ParseMegaUrl("https://mega.nz/folder/MWsm3aBL#xsXXTpoYEFDRQdeHPDrv7A")
	require.NoError(t, err)

	resolved, err := e.ResolveURL(context.Background(), parsed)
	require.NoError(t, err)
	require.NotNil(t, resolved.Folder)
	assert.Equal(t, "internalRootID", resolved.Folder.Node.ID)
	assert.Equal(t, NodeRoot, resolved.Folder.Node.Kind)
}

// wrappedFolderKeyForTest ECB-encrypts a folder key under itself, the
// same self-wrapping shape MEGA uses for directory nodes directly owned
// by the folder share (no distinct owner key in scope here).
func wrappedFolderKeyForTest(t *testing.T, folderKey FolderKey) string {
	t.Helper()
	var raw [16]byte
	folderKey.putBytes(raw[:])
	keyBytes := make([]byte, 16)
	folderKey.putBytes(keyBytes)
	wrapped, err := ecbEncrypt(keyBytes, raw[:])
	require.NoError(t, err)
	return b64.EncodeToString(wrapped)
}
