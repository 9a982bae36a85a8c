package mega

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMegaUrlFileS1(t *testing.T) {
	parsed, err := ParseMegaUrl("https://mega.nz/file/7glwEQBT#Fy9cwPpCmuaVdEkW19qwBLaiMeyufB1kseqisOAxfi8")
	require.NoError(t, err)

	fileURL, ok := parsed.AsFileUrl()
	require.True(t, ok)
	assert.Equal(t, "7glwEQBT", fileURL.FileID)
	assert.Equal(t, uint64(0xA18D6D2C543E8782), fileURL.FileKey.Key.hi)
}

func TestParseMegaUrlFolderWithChildS2(t *testing.T) {
	parsed, err := ParseMegaUrl("https://mega.nz/folder/MWsm3aBL#xsXXTpoYEFDRQdeHPDrv7A/folder/IGlBlD6K")
	require.NoError(t, err)

	folderURL, ok := parsed.AsFolderUrl()
	require.True(t, ok)
	assert.Equal(t, "MWsm3aBL", folderURL.FolderID)
	assert.Equal(t, uint64(0xC6C5D74E9A181050), folderURL.FolderKey.hi)
	require.NotNil(t, folderURL.Child)
	assert.Equal(t, ChildFolder, folderURL.Child.Kind)
	assert.Equal(t, "IGlBlD6K", folderURL.Child.NodeID)
}

func TestParseMegaUrlFolderWithoutChild(t *testing.T) {
	parsed, err := ParseMegaUrl("https://mega.nz/folder/MWsm3aBL#xsXXTpoYEFDRQdeHPDrv7A")
	require.NoError(t, err)

	folderURL, ok := parsed.AsFolderUrl()
	require.True(t, ok)
	assert.Nil(t, folderURL.Child)
}

func TestParseMegaUrlRejectsWrongHost(t *testing.T) {
	_, err := ParseMegaUrl("https://example.com/file/7glwEQBT#Fy9cwPpCmuaVdEkW19qwBLaiMeyufB1kseqisOAxfi8")
	require.Error(t, err)
	var urlErr *URLError
	assert.ErrorAs(t, err, &urlErr)
}

func TestParseMegaUrlRejectsMissingFragment(t *testing.T) {
	_, err := ParseMegaUrl("https://mega.nz/file/7glwEQBT")
	require.Error(t, err)
}

func TestParseMegaUrlRejectsUnknownPathSegment(t *testing.T) {
	_, err := ParseMegaUrl("https://mega.nz/unknown/7glwEQBT#Fy9cwPpCmuaVdEkW19qwBLaiMeyufB1kseqisOAxfi8")
	require.Error(t, err)
}

func TestParseFileUrlRejectsFolderUrl(t *testing.T) {
	_, err := ParseFileUrl("https://mega.nz/folder/MWsm3aBL#xsXXTpoYEFDRQdeHPDrv7A")
	require.Error(t, err)
}

func TestParseFolderUrlRejectsFileUrl(t *testing.T) {
	_, err := ParseFolderUrl("https://mega.nz/file/7glwEQBT#Fy9cwPpCmuaVdEkW19qwBLaiMeyufB1kseqisOAxfi8")
	require.Error(t, err)
}
