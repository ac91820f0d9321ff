package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dshills/geosync/pkg/types"
)

// ParseFeatureCollection decodes a FeatureCollection from r one feature at a
// time. The type member, when present, must be "FeatureCollection" and the
// features array is required. Elements that are valid JSON but not valid
// Features come back with DecodeErr set instead of failing the document.
func ParseFeatureCollection(r io.Reader) ([]types.Feature, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("payload is not a JSON object")
	}

	var features []types.Feature
	sawFeatures := false

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)

		switch key {
		case "type":
			var typ string
			if err := dec.Decode(&typ); err != nil {
				return nil, fmt.Errorf("type: %w", err)
			}
			if typ != "FeatureCollection" {
				return nil, fmt.Errorf("expected FeatureCollection, got %q", typ)
			}
		case "features":
			sawFeatures = true
			features, err = decodeFeatures(dec)
			if err != nil {
				return nil, err
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected content after FeatureCollection")
	}
	if !sawFeatures {
		return nil, errors.New("features array is missing")
	}
	if features == nil {
		features = []types.Feature{}
	}
	return features, nil
}

func decodeFeatures(dec *json.Decoder) ([]types.Feature, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.New("features must be an array")
	}

	var features []types.Feature
	for i := 0; dec.More(); i++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("features[%d]: %w", i, err)
		}
		// A well-formed element that is not a valid Feature is rejected later,
		// on its own.
		var f types.Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			f = types.Malformed(raw, fmt.Errorf("features[%d]: %v", i, err))
		}
		features = append(features, f)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return features, nil
}
