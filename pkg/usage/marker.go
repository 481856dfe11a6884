package usage

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Marker separates streamed completion text from the trailing usage JSON
const Marker = "\n\n__USAGE_DATA__"

type markerPayload struct {
	Usage UsageData `json:"__usage"`
}

// EncodeMarker renders the trailer appended to a streamed response:
// Marker followed by {"__usage": {...}}.
func EncodeMarker(u UsageData) ([]byte, error) {
	payload, err := json.Marshal(markerPayload{Usage: u})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode usage data")
	}
	return append([]byte(Marker), payload...), nil
}

// SplitMarker separates accumulated stream text into display content and
// usage data. Without a marker the whole text is content and usage is nil.
// When the marker is present but the JSON after it is incomplete or invalid,
// content is still returned together with the parse error.
func SplitMarker(text string) (string, *UsageData, error) {
	idx := strings.Index(text, Marker)
	if idx < 0 {
		return text, nil, nil
	}

	content := text[:idx]
	var payload markerPayload
	if err := json.Unmarshal([]byte(text[idx+len(Marker):]), &payload); err != nil {
		return content, nil, errors.Wrap(err, "failed to parse usage data")
	}
	return content, &payload.Usage, nil
}
