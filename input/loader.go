package input

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dlp-proof/proofverifier"
)

const (
	DefaultInputFile = "input.json"

	signatureField  = "signature"
	signaturePrefix = "signature_"
)

// LoadDir scans dir for .json files and parses entries from the one named
// fileName. Other JSON files are skipped. A directory without the input file
// yields an empty batch, which scores zero rather than failing the run.
func LoadDir(dir, fileName, entriesPath string) ([]proofverifier.Entry, error) {
	if fileName == "" {
		fileName = DefaultInputFile
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read input directory %s", dir)
	}

	var entries []proofverifier.Entry
	found := false
	for _, f := range files {
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".json") {
			continue
		}
		if f.Name() != fileName {
			logger.Debug("Skipping input file", zap.String("component", "Loader"), zap.String("file", f.Name()))
			continue
		}

		path := filepath.Join(dir, f.Name())
		doc, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		entries, err = ParseEntries(doc, entriesPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		found = true
	}

	if !found {
		logger.Warn("Input file not found, batch is empty",
			zap.String("component", "Loader"),
			zap.String("dir", dir),
			zap.String("file", fileName))
	}
	return entries, nil
}

// ParseEntries turns an input document into typed entries. The document must
// be valid JSON and entriesPath must select an array; an element that does not
// look like an entry becomes an entry with nil Data instead of an error.
func ParseEntries(doc []byte, entriesPath string) ([]proofverifier.Entry, error) {
	if !json.Valid(doc) {
		return nil, errors.New("input is not valid JSON")
	}

	arr, err := locateEntries(doc, entriesPath)
	if err != nil {
		return nil, err
	}
	elements, err := arrayElements(arr)
	if err != nil {
		return nil, err
	}

	entries := make([]proofverifier.Entry, 0, len(elements))
	malformed := 0
	for _, el := range elements {
		entry, ok := toEntry(el)
		if !ok {
			malformed++
		}
		entries = append(entries, entry)
	}

	logger.Info("Parsed input entries",
		zap.String("component", "Loader"),
		zap.Int("entries", len(entries)),
		zap.Int("malformed", malformed))
	return entries, nil
}

func toEntry(el locatedValue) (proofverifier.Entry, bool) {
	entry := proofverifier.Entry{Offset: el.offset}

	if err := ValidateEntry(el.raw); err != nil {
		var probe struct {
			ID any `json:"id"`
		}
		if json.Unmarshal(el.raw, &probe) == nil {
			entry.ID = idString(probe.ID)
		}
		logger.Warn("Malformed entry",
			zap.String("component", "Loader"),
			zap.String("entry_id", entry.ID),
			zap.Int("offset", el.offset),
			zap.Error(err))
		return entry, false
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(el.raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		logger.Warn("Malformed entry", zap.String("component", "Loader"), zap.Int("offset", el.offset), zap.Error(err))
		return entry, false
	}

	entry.ID = idString(fields["id"])
	entry.Data, _ = fields["data"].(map[string]any)
	entry.Signatures = signatureList(fields)
	return entry, true
}

// signatureList collects "signature" and every "signature_<N>" field ordered by
// N, with the bare field first. Null signatures stay as empty slots.
func signatureList(fields map[string]any) []string {
	type indexed struct {
		index int
		key   string
		value string
	}

	var list []indexed
	for key, v := range fields {
		index := -1
		switch {
		case key == signatureField:
			index = 0
		case strings.HasPrefix(key, signaturePrefix):
			n, err := strconv.Atoi(strings.TrimPrefix(key, signaturePrefix))
			if err != nil || n < 0 {
				continue
			}
			index = n
		default:
			continue
		}
		s, _ := v.(string)
		list = append(list, indexed{index: index, key: key, value: s})
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].index != list[j].index {
			return list[i].index < list[j].index
		}
		return list[i].key < list[j].key
	})

	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.value
	}
	return out
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}
