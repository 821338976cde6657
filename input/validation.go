package input

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// EntrySchema is the wire shape of one submitted entry. Everything else about
// an entry (what data holds, whether signatures recover) is judged by scoring.
const EntrySchema = `{
	"type": "object",
	"properties": {
		"id": {"type": ["string", "number", "null"]},
		"data": {"type": "object"},
		"signature": {"type": ["string", "null"]}
	},
	"patternProperties": {
		"^signature_[0-9]+$": {"type": ["string", "null"]}
	}
}`

var (
	entrySchemaOnce     sync.Once
	compiledEntrySchema *gojsonschema.Schema
	entrySchemaErr      error
)

func entrySchema() (*gojsonschema.Schema, error) {
	entrySchemaOnce.Do(func() {
		compiledEntrySchema, entrySchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(EntrySchema))
		if entrySchemaErr != nil {
			entrySchemaErr = errors.Wrap(entrySchemaErr, "failed to compile entry schema")
		}
	})
	return compiledEntrySchema, entrySchemaErr
}

// ValidateEntry checks one raw entry against EntrySchema.
func ValidateEntry(raw []byte) error {
	schema, err := entrySchema()
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrap(err, "entry validation failed")
	}
	if !result.Valid() {
		var b strings.Builder
		for _, e := range result.Errors() {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(e.String())
		}
		return errors.Errorf("entry validation failed: %s", b.String())
	}
	return nil
}
