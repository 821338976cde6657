package input

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	gojson "github.com/coreos/go-json"
	"github.com/pkg/errors"
	jp "github.com/reclaimprotocol/jsonpathplus-go"
)

// locatedValue is a raw JSON value together with its byte offset in the document.
type locatedValue struct {
	raw    json.RawMessage
	offset int
}

// locateEntries resolves entriesPath against doc and returns the selected value:
// 1) evaluate the JSONPath with jsonpathplus-go
// 2) parse doc into a coreos/go-json Node tree carrying byte offsets
// 3) walk the tree by the matched path and cut the value out of doc
// "$" or an empty path selects the whole document.
func locateEntries(doc []byte, entriesPath string) (locatedValue, error) {
	entriesPath = strings.TrimSpace(entriesPath)
	if entriesPath == "" || entriesPath == "$" {
		return readValueAt(doc, 0)
	}

	results, err := jp.Query(entriesPath, string(doc))
	if err != nil {
		return locatedValue{}, errors.Wrapf(err, "JSONPath query %q failed", entriesPath)
	}
	if len(results) == 0 {
		return locatedValue{}, errors.Errorf("JSONPath %q matched nothing", entriesPath)
	}
	if len(results) > 1 {
		return locatedValue{}, errors.Errorf("JSONPath %q matched %d values, expected a single array", entriesPath, len(results))
	}

	var root gojson.Node
	if err := gojson.Unmarshal(doc, &root); err != nil {
		return locatedValue{}, errors.Wrap(err, "failed to parse JSON for offsets")
	}
	n, err := findNodeBySegments(&root, jsonPathToSegments(results[0].Path))
	if err != nil {
		return locatedValue{}, errors.Wrapf(err, "failed to resolve path %q", results[0].Path)
	}
	return readValueAt(doc, n.Start)
}

// arrayElements splits an array value into its elements, keeping absolute offsets.
func arrayElements(arr locatedValue) ([]locatedValue, error) {
	var root gojson.Node
	if err := gojson.Unmarshal(arr.raw, &root); err != nil {
		return nil, errors.Wrap(err, "failed to parse entries")
	}
	nodes, ok := root.Value.([]gojson.Node)
	if !ok {
		return nil, errors.Errorf("entries must be a JSON array, got %s", nodeKind(root.Value))
	}

	out := make([]locatedValue, 0, len(nodes))
	for i, n := range nodes {
		v, err := readValueAt(arr.raw, n.Start)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		v.offset += arr.offset
		out = append(out, v)
	}
	return out, nil
}

// readValueAt decodes exactly one JSON value starting at offset. Node.End is
// not used: only the start offset is needed to cut a value out of the document.
func readValueAt(doc []byte, offset int) (locatedValue, error) {
	if offset < 0 || offset > len(doc) {
		return locatedValue{}, errors.Errorf("offset %d outside document of %d bytes", offset, len(doc))
	}
	var raw json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(doc[offset:])).Decode(&raw); err != nil {
		return locatedValue{}, errors.Wrapf(err, "invalid JSON at offset %d", offset)
	}
	return locatedValue{raw: raw, offset: offset + leadingSpace(doc[offset:])}, nil
}

func leadingSpace(b []byte) int {
	return len(b) - len(bytes.TrimLeft(b, " \t\r\n"))
}

func nodeKind(v any) string {
	switch v.(type) {
	case map[string]gojson.Node:
		return "an object"
	case []gojson.Node:
		return "an array"
	case string:
		return "a string"
	case nil:
		return "null"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}

// jsonPathToSegments converts a JSONPath like $.a[1].b or $['a'][1] to segments ["a","1","b"].
func jsonPathToSegments(path string) []string {
	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil
	}
	var segments []string
	var cur strings.Builder
	inBracket := false
	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, strings.Trim(cur.String(), `'"`))
			cur.Reset()
		}
	}
	for _, r := range p {
		switch {
		case r == '.' && !inBracket:
			flush()
		case r == '[' && !inBracket:
			flush()
			inBracket = true
		case r == ']' && inBracket:
			flush()
			inBracket = false
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return segments
}

// findNodeBySegments walks a coreos/go-json Node tree following the provided segments.
func findNodeBySegments(node *gojson.Node, segments []string) (*gojson.Node, error) {
	cur := node
	for i, seg := range segments {
		switch v := cur.Value.(type) {
		case map[string]gojson.Node:
			next, ok := v[seg]
			if !ok {
				return nil, errors.Errorf("object key %q not found at segment %d", seg, i)
			}
			cur = &next
		case []gojson.Node:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, errors.Errorf("invalid array index %q at segment %d", seg, i)
			}
			if idx < 0 || idx >= len(v) {
				return nil, errors.Errorf("array index %d out of bounds at segment %d", idx, i)
			}
			cur = &v[idx]
		default:
			return nil, errors.Errorf("cannot traverse into %s at segment %d", nodeKind(v), i)
		}
	}
	return cur, nil
}
