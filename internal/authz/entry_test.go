package authz

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseEntryRejectsReservedData(t *testing.T) {
	cases := []map[string]any{
		{"_superuser": true},
		{"_read": "everything"},
		{"_read": map[string]any{"access": "yes"}},
		{"_write": map[string]any{"_read": true}},
		{"_write": []any{"ok", 3}},
		{"": 1},
	}
	for _, raw := range cases {
		if _, err := ParseEntry(raw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParseEntry(%v) err=%v, want invalid input", raw, err)
		}
	}
}

func TestParseEntryAcceptsListsAndMaps(t *testing.T) {
	e, err := ParseEntry(map[string]any{
		"access": true,
		"_read":  []any{"access", "_superuser"},
		"_write": map[string]any{"access": true, "grade": false},
	})
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	if !e.Read.Superuser || !e.Read.Keys["access"] {
		t.Fatalf("read set not parsed: %+v", e.Read)
	}
	if e.Write.Superuser || !e.Write.Keys["access"] || e.Write.Keys["grade"] {
		t.Fatalf("write set not parsed: %+v", e.Write)
	}
	if _, ok := e.Write.Keys["grade"]; !ok {
		t.Fatal("explicit false key should be kept")
	}
	if len(e.Data) != 1 || e.Data["access"] != true {
		t.Fatalf("unexpected data: %v", e.Data)
	}
}

func TestEntryJSON(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`{"access":true,"_write":{"_superuser":true}}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !e.Write.Superuser {
		t.Fatal("superuser lost")
	}
	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"_write":{"_superuser":true},"access":true}` {
		t.Fatalf("unexpected json: %s", out)
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &e); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for array, got %v", err)
	}
}

func TestEntryCloneIsDeep(t *testing.T) {
	e := Entry{
		Data: map[string]any{"nested": map[string]any{"v": 1}},
		Read: AccessSet{Keys: map[string]bool{"nested": true}},
	}
	c := e.Clone()
	c.Data["nested"].(map[string]any)["v"] = 2
	c.Read.Keys["nested"] = false
	if e.Data["nested"].(map[string]any)["v"] != 1 || !e.Read.Keys["nested"] {
		t.Fatal("clone shares memory with original")
	}
}
