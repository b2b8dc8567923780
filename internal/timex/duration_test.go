package timex

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDuration_UnmarshalString(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"1m30s"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("got %v, want 1m30s", d.Duration)
	}
}

func TestDuration_UnmarshalNanoseconds(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`1000000000`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != time.Second {
		t.Fatalf("got %v, want 1s", d.Duration)
	}
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"not a duration"`), &d); err == nil {
		t.Fatal("want error for invalid duration string")
	}
	if err := json.Unmarshal([]byte(`true`), &d); err == nil {
		t.Fatal("want error for non-string, non-number value")
	}
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	out, err := json.Marshal(Duration{90 * time.Second})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"1m30s"` {
		t.Fatalf("got %s", out)
	}
}
