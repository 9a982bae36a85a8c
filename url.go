package mega

import (
	"net/url"
	"strings"
)

// ParsedMegaChildKind distinguishes a folder URL's optional child
// selector — the "/file/<id>" or "/folder/<id>" suffix after the folder
// key fragment.
type ParsedMegaChildKind int

const (
	ChildFile ParsedMegaChildKind = iota
	ChildFolder
)

// ParsedMegaFolderUrlChild is the optional child selector on a folder
// share URL.
type ParsedMegaFolderUrlChild struct {
	Kind   ParsedMegaChildKind
	NodeID string
}

// ParsedMegaFileUrl is the result of parsing a `https://mega.nz/file/...`
// share URL.
type ParsedMegaFileUrl struct {
	FileID  string
	FileKey FileKey
}

// ParsedMegaFolderUrl is the result of parsing a
// `https://mega.nz/folder/...` share URL.
type ParsedMegaFolderUrl struct {
	FolderID  string
	FolderKey FolderKey
	// Child is set when the fragment names a node within the folder,
	// e.g. "#<key>/folder/<id>".
	Child *ParsedMegaFolderUrlChild
}

// ParsedMegaUrl holds exactly one of a file or a folder URL.
//
// Grounded on mega/src/parsed_mega_url.rs's ParsedMegaUrl enum; Go has no
// sum type, so this is a tagged struct rather than an interface
// hierarchy, per spec.md §9's explicit preference for tagged variants
// over a class hierarchy.
type ParsedMegaUrl struct {
	file   *ParsedMegaFileUrl
	folder *ParsedMegaFolderUrl
}

// AsFileUrl returns the file URL and true if this is one.
func (p ParsedMegaUrl) AsFileUrl() (*ParsedMegaFileUrl, bool) {
	return p.file, p.file != nil
}

// AsFolderUrl returns the folder URL and true if this is one.
func (p ParsedMegaUrl) AsFolderUrl() (*ParsedMegaFolderUrl, bool) {
	return p.folder, p.folder != nil
}

// ParseMegaUrl parses a MEGA public file or folder share URL.
//
// Grounded on mega/src/parsed_mega_url.rs's TryFrom<&Url> impl.
func ParseMegaUrl(rawURL string) (ParsedMegaUrl, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ParsedMegaUrl{}, &URLError{Reason: "could not parse as a url", Err: err}
	}
	return ParseMegaUrlFromURL(u)
}

// ParseMegaUrlFromURL parses an already-parsed *url.URL.
func ParseMegaUrlFromURL(u *url.URL) (ParsedMegaUrl, error) {
	if u.Hostname() != "mega.nz" {
		return ParsedMegaUrl{}, &URLError{Reason: "invalid host"}
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ParsedMegaUrl{}, &URLError{Reason: "missing path segment"}
	}

	switch segments[0] {
	case "file":
		if len(segments) < 2 {
			return ParsedMegaUrl{}, &URLError{Reason: "missing file id path segment"}
		}
		if len(segments) > 2 {
			return ParsedMegaUrl{}, &URLError{Reason: "expected the path to end, but it continued"}
		}
		fileID := segments[1]

		fragment := u.EscapedFragment()
		if fragment == "" {
			return ParsedMegaUrl{}, &URLError{Reason: "missing file key"}
		}
		fileKey, err := ParseFileKey(fragment)
		if err != nil {
			return ParsedMegaUrl{}, &URLError{Reason: "invalid file key", Err: err}
		}

		return ParsedMegaUrl{file: &ParsedMegaFileUrl{FileID: fileID, FileKey: fileKey}}, nil

	case "folder":
		if len(segments) < 2 {
			return ParsedMegaUrl{}, &URLError{Reason: "missing folder id path segment"}
		}
		if len(segments) > 2 {
			return ParsedMegaUrl{}, &URLError{Reason: "expected the path to end, but it continued"}
		}
		folderID := segments[1]

		fragment := u.EscapedFragment()
		if fragment == "" {
			return ParsedMegaUrl{}, &URLError{Reason: "missing folder key"}
		}

		folderKeyRaw, rest, hasRest := strings.Cut(fragment, "/")

		var child *ParsedMegaFolderUrlChild
		if hasRest && rest != "" {
			kind, nodeID, ok := strings.Cut(rest, "/")
			if !ok {
				return ParsedMegaUrl{}, &URLError{Reason: "unknown fragment format"}
			}
			var childKind ParsedMegaChildKind
			switch kind {
			case "file":
				childKind = ChildFile
			case "folder":
				childKind = ChildFolder
			default:
				return ParsedMegaUrl{}, &URLError{Reason: "unknown fragment path segment"}
			}
			child = &ParsedMegaFolderUrlChild{Kind: childKind, NodeID: nodeID}
		}

		folderKey, err := ParseFolderKey(folderKeyRaw)
		if err != nil {
			return ParsedMegaUrl{}, &URLError{Reason: "invalid folder key", Err: err}
		}

		return ParsedMegaUrl{folder: &ParsedMegaFolderUrl{
			FolderID:  folderID,
			FolderKey: folderKey,
			Child:     child,
		}}, nil

	default:
		return ParsedMegaUrl{}, &URLError{Reason: "unknown path segment"}
	}
}

// ParseFileUrl parses a URL known to be a file share URL, returning a
// URLError if it is a folder URL or otherwise malformed.
//
// Supplemental convenience wrapper — see SPEC_FULL.md's "Supplemented
// features", grounded on mega-cli's mega::parse_file_url call sites.
func ParseFileUrl(rawURL string) (*ParsedMegaFileUrl, error) {
	parsed, err := ParseMegaUrl(rawURL)
	if err != nil {
		return nil, err
	}
	fileURL, ok := parsed.AsFileUrl()
	if !ok {
		return nil, &URLError{Reason: "not a file url"}
	}
	return fileURL, nil
}

// ParseFolderUrl parses a URL known to be a folder share URL, returning a
// URLError if it is a file URL or otherwise malformed.
func ParseFolderUrl(rawURL string) (*ParsedMegaFolderUrl, error) {
	parsed, err := ParseMegaUrl(rawURL)
	if err != nil {
		return nil, err
	}
	folderURL, ok := parsed.AsFolderUrl()
	if !ok {
		return nil, &URLError{Reason: "not a folder url"}
	}
	return folderURL, nil
}
