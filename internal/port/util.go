package port

import "encoding/json"

// marshalOrNil marshals value, returning a nil json.RawMessage for a
// nil value instead of the literal "null" token — useful for creation
// parameters that are legitimately absent.
func marshalOrNil(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}
