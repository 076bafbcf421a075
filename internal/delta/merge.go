package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strrl/brightspots/internal/survey"
)

// Dir is where delta files live below a deltas folder.
const Dir = "conclusion-assets/brightspots-deltas"

const subPath = Dir + "/"

// Location builds the delta file path for a record id under folder.
func Location(folder, id string) string {
	base := strings.TrimRight(folder, "/")
	if base != "" || strings.HasPrefix(folder, "/") {
		base += "/"
	}
	return base + subPath + FileName(id)
}

// FileName is the delta file name for a record id.
func FileName(id string) string {
	return "delta" + id + ".json"
}

// Merge applies a delta object to rec. Object values merge one level deep into
// the existing field; arrays, scalars and null replace it. The id column never
// changes the record's identity.
func Merge(rec *survey.Record, data []byte, fields survey.FieldMap) error {
	var delta map[string]json.RawMessage
	if err := json.Unmarshal(data, &delta); err != nil {
		return fmt.Errorf("failed to parse delta: %w", err)
	}
	if delta == nil {
		return fmt.Errorf("failed to parse delta: not an object")
	}

	for key, raw := range delta {
		if fields.Lookup(key) == survey.FieldID {
			continue
		}
		if isObject(raw) {
			fields.Overlay(rec, key, raw)
			continue
		}
		fields.Assign(rec, key, raw)
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
