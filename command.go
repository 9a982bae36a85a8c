package mega

import "encoding/json"

// Command is a single command sent as one element of the JSON array body
// posted to the `cs` endpoint. Its wire representation is tagged by the
// single-letter "a" field MEGA expects — field names below are chosen to
// serialize bit-exactly to what the API requires, not for Go style.
//
// Grounded on mega/src/types/command.rs; Go has no tagged-union
// `#[serde(tag = "a")]` equivalent, so each command kind gets its own
// struct and a MarshalJSON method on Command handles the dispatch.
type Command struct {
	kind           commandKind
	getAttributes  *getAttributesCommand
	fetchNodes     *fetchNodesCommand
}

type commandKind int

const (
	commandGetAttributes commandKind = iota
	commandFetchNodes
)

type getAttributesCommand struct {
	PublicNodeID        *string `json:"p,omitempty"`
	NodeID              *string `json:"n,omitempty"`
	IncludeDownloadURL  *int    `json:"g,omitempty"`
}

type fetchNodesCommand struct {
	C         int `json:"c"`
	Recursive int `json:"r"`
}

// NewGetAttributesCommand builds a `g` command. Exactly one of
// publicNodeID/nodeID should be non-empty; the Easy facade enforces the
// mutual exclusivity spec.md §4.6 requires before a Command ever reaches
// here.
func NewGetAttributesCommand(publicNodeID, nodeID string, includeDownloadURL bool) Command {
	cmd := &getAttributesCommand{}
	if publicNodeID != "" {
		cmd.PublicNodeID = &publicNodeID
	}
	if nodeID != "" {
		cmd.NodeID = &nodeID
	}
	if includeDownloadURL {
		one := 1
		cmd.IncludeDownloadURL = &one
	}
	return Command{kind: commandGetAttributes, getAttributes: cmd}
}

// NewFetchNodesCommand builds an `f` command. recursive=true sets r=1.
func NewFetchNodesCommand(recursive bool) Command {
	r := 0
	if recursive {
		r = 1
	}
	return Command{kind: commandFetchNodes, fetchNodes: &fetchNodesCommand{C: 1, Recursive: r}}
}

// wireGetAttributes and wireFetchNodes are the on-the-wire shapes: the tag plus the command's
// fields are flattened into the same object, since MEGA commands carry
// their fields alongside "a" rather than nested under it.
type wireGetAttributes struct {
	A                  string  `json:"a"`
	PublicNodeID       *string `json:"p,omitempty"`
	NodeID             *string `json:"n,omitempty"`
	IncludeDownloadURL *int    `json:"g,omitempty"`
}

type wireFetchNodes struct {
	A         string `json:"a"`
	C         int    `json:"c"`
	Recursive int    `json:"r"`
}

// MarshalJSON implements json.Marshaler.
func (c Command) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case commandGetAttributes:
		return json.Marshal(wireGetAttributes{
			A:                  "g",
			PublicNodeID:       c.getAttributes.PublicNodeID,
			NodeID:             c.getAttributes.NodeID,
			IncludeDownloadURL: c.getAttributes.IncludeDownloadURL,
		})
	case commandFetchNodes:
		return json.Marshal(wireFetchNodes{
			A:         "f",
			C:         c.fetchNodes.C,
			Recursive: c.fetchNodes.Recursive,
		})
	default:
		return json.Marshal(struct{}{})
	}
}
