package wire

import (
	"encoding/json"
	"testing"
)

func TestFrameMarshalRoundtrip(t *testing.T) {
	f := Frame{
		Type:      TypeRPCCall,
		Endpoint:  "add",
		CallID:    7,
		Parameter: json.RawMessage(`{"a":2,"b":3}`),
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Frame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Type != f.Type {
		t.Errorf("Type = %q, want %q", decoded.Type, f.Type)
	}
	if decoded.CallID != f.CallID {
		t.Errorf("CallID = %d, want %d", decoded.CallID, f.CallID)
	}
	if decoded.Endpoint != f.Endpoint {
		t.Errorf("Endpoint = %q, want %q", decoded.Endpoint, f.Endpoint)
	}
}

func TestFrameOmitsUnusedFields(t *testing.T) {
	f := Frame{Type: TypeKeepAlive}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(raw) != 1 {
		t.Errorf("keepAlive frame should marshal to exactly {type}, got %v", raw)
	}
}

func TestSerializedErrorRoundtrip(t *testing.T) {
	raw := `{"title":"boom","cause":"disk full","suggestion":"free up space"}`
	var e SerializedError
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Title != "boom" || e.Cause != "disk full" || e.Suggestion != "free up space" {
		t.Errorf("unexpected decode: %+v", e)
	}
}

func TestPatchRootReplace(t *testing.T) {
	p := Patch{Op: "replace", Path: []any{}, Value: map[string]any{"n": 0}}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	json.Unmarshal(data, &raw)
	path, ok := raw["path"].([]any)
	if !ok || len(path) != 0 {
		t.Errorf("root replace should encode an empty path array, got %v", raw["path"])
	}
}
