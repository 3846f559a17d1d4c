package transcript

import (
	"bytes"
	"encoding/json"
)

// NormalizeToolContent wraps a raw tool result for the rendering layer:
// arrays become lists, other JSON containers become structured values and
// everything else becomes text. JSON strings are unquoted; numbers, booleans
// and null keep their literal spelling. The result is deterministic.
func NormalizeToolContent(raw json.RawMessage) Content {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Content{kind: ContentText}
	}

	switch trimmed[0] {
	case '[', '{':
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return Content{kind: ContentText, text: string(trimmed)}
		}
		kind := ContentStructured
		if trimmed[0] == '[' {
			kind = ContentList
		}
		return Content{kind: kind, data: compact.Bytes()}
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return Content{kind: ContentText, text: s}
		}
	}

	return Content{kind: ContentText, text: string(trimmed)}
}
