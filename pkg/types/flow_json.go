package types

import "encoding/json"

// knownFlowFields lists the top-level Flow JSON keys the runtime
// understands; everything else is preserved verbatim in Extra so a
// newer document round-trips through an older runtime unharmed.
var knownFlowFields = map[string]bool{
	"id": true, "name": true, "elements": true, "blocks": true,
	"links": true, "auto_restart": true, "properties": true,
	"created_at": true, "updated_at": true,
}

// MarshalJSON encodes a Flow, re-emitting any preserved unknown
// top-level fields alongside the known ones.
func (f Flow) MarshalJSON() ([]byte, error) {
	type alias Flow
	known, err := json.Marshal(alias(f))
	if err != nil {
		return nil, err
	}
	if len(f.Extra) == 0 {
		return known, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range f.Extra {
		if !knownFlowFields[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes a Flow, stashing any unrecognized top-level
// field into Extra so it survives a later put/get cycle unmodified.
func (f *Flow) UnmarshalJSON(data []byte) error {
	type alias Flow
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = Flow(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := map[string]json.RawMessage{}
	for k, v := range raw {
		if !knownFlowFields[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		f.Extra = extra
	}
	return nil
}
