package codec

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	in := payload{Name: "a", Count: 3}

	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out payload
	if err := Decode(raw, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestIsRetrySentinel_Recognized(t *testing.T) {
	raw := `{"_oxen_queue_retry_seconds": 5.5}`
	delay, ok := IsRetrySentinel(raw)
	if !ok {
		t.Fatal("expected sentinel to be recognized")
	}
	if delay != 5500*time.Millisecond {
		t.Errorf("got delay %v, want 5.5s", delay)
	}
}

func TestIsRetrySentinel_PlainSuccess(t *testing.T) {
	cases := []string{
		`{"status": "ok"}`,
		`"a string result"`,
		`42`,
		`null`,
	}
	for _, raw := range cases {
		if _, ok := IsRetrySentinel(raw); ok {
			t.Errorf("raw %q should not be recognized as a retry sentinel", raw)
		}
	}
}

func TestIsRetrySentinel_NegativeDelayRejected(t *testing.T) {
	raw := `{"_oxen_queue_retry_seconds": -1}`
	if _, ok := IsRetrySentinel(raw); ok {
		t.Error("negative retry delay must not be treated as a sentinel")
	}
}

func TestEncodeError_CarriesMessageAndStack(t *testing.T) {
	raw := EncodeError(errors.New("boom"))
	if !strings.Contains(raw, "boom") {
		t.Errorf("encoded error missing message: %s", raw)
	}
	if !strings.Contains(raw, `"stack"`) {
		t.Errorf("encoded error missing stack field: %s", raw)
	}
}
