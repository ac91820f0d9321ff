package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// SRID4326 is the only coordinate reference persisted by the pipeline (WGS 84).
const SRID4326 = 4326

// Feature is one raw record of a source FeatureCollection.
//
// Geometry is kept undecoded until the normalizer sees it; a nil Geometry means
// the member was absent or null. HasProperties is false under the same
// conditions for the properties member.
//
// DecodeErr is set by the collection parser when the element could not be
// decoded as a Feature. Such a feature carries at most a best-effort ID and is
// rejected during processing.
type Feature struct {
	ID            string
	Geometry      json.RawMessage
	Properties    Properties
	HasProperties bool
	DecodeErr     error
}

// Malformed returns a placeholder for an element that failed to decode. The id
// is kept when it can still be read from raw.
func Malformed(raw json.RawMessage, err error) Feature {
	f := Feature{DecodeErr: fmt.Errorf("%w: %v", ErrInvalidFeature, err)}
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(raw, &head) == nil {
		if id, idErr := decodeFeatureID(head.ID); idErr == nil {
			f.ID = id
		}
	}
	return f
}

type rawFeature struct {
	Type       string          `json:"type"`
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

// UnmarshalJSON decodes a GeoJSON Feature object. Numeric ids keep their
// literal text so that 7 and "7" address the same record.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw rawFeature
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := decodeFeatureID(raw.ID)
	if err != nil {
		return err
	}
	f.ID = id

	f.Geometry = nil
	if len(raw.Geometry) > 0 && !isJSONNull(raw.Geometry) {
		f.Geometry = append(json.RawMessage(nil), raw.Geometry...)
	}

	f.Properties = Properties{}
	f.HasProperties = raw.Properties != nil && !isJSONNull(raw.Properties)
	if f.HasProperties {
		if err := json.Unmarshal(raw.Properties, &f.Properties); err != nil {
			return fmt.Errorf("properties: %w", err)
		}
	}
	return nil
}

// MarshalJSON encodes the feature back to GeoJSON.
func (f Feature) MarshalJSON() ([]byte, error) {
	out := struct {
		Type       string          `json:"type"`
		ID         string          `json:"id,omitempty"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties *Properties     `json:"properties"`
	}{
		Type:     "Feature",
		ID:       f.ID,
		Geometry: f.Geometry,
	}
	if out.Geometry == nil {
		out.Geometry = json.RawMessage("null")
	}
	if f.HasProperties {
		props := f.Properties
		out.Properties = &props
	}
	return json.Marshal(out)
}

func decodeFeatureID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isJSONNull(raw) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("id: %w", err)
		}
		return s, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("id must be a string or number: %w", err)
		}
		return n.String(), nil
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// SourceDocument is one fetched FeatureCollection together with the digest of
// the exact bytes that were downloaded and backed up.
type SourceDocument struct {
	URL        string
	Features   []Feature
	Hash       string // hex SHA-256 of the raw payload
	Bytes      int64
	BackupPath string
	FetchedAt  time.Time
}
