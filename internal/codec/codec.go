// Package codec implements the textual encode/decode pair oxenqueue uses for
// job bodies and results, plus detection of the retry sentinel shape a work
// function's return value may carry.
package codec

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"
)

// RetryKey is the well-known field a work function's encoded return value
// must carry to request a delayed requeue instead of success.
const RetryKey = "_oxen_queue_retry_seconds"

// Encode renders v as the textual, round-trippable payload stored in the
// job's body or result column.
func Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("codec: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses raw into out. raw is expected to be the JSON text previously
// produced by Encode.
func Decode(raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

type sentinel struct {
	RetrySeconds *float64 `json:"_oxen_queue_retry_seconds"`
}

// IsRetrySentinel inspects an encoded work-function return value for the
// retry sentinel shape. Any return value lacking the key, or carrying a
// negative delay, is treated as a plain success value.
func IsRetrySentinel(raw string) (time.Duration, bool) {
	var s sentinel
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return 0, false
	}
	if s.RetrySeconds == nil || *s.RetrySeconds < 0 {
		return 0, false
	}
	return time.Duration(*s.RetrySeconds * float64(time.Second)), true
}

type errorDescription struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// EncodeError renders an error as the "message and stack" description the
// spec requires for a job's result column on failure.
func EncodeError(err error) string {
	desc := errorDescription{Message: err.Error(), Stack: string(debug.Stack())}
	b, mErr := json.Marshal(desc)
	if mErr != nil {
		return err.Error()
	}
	return string(b)
}

// EncodeTimeoutError renders the fixed error description used when a job's
// timeout fires before the work function returns.
func EncodeTimeoutError(timeout time.Duration) string {
	return EncodeError(fmt.Errorf("job timed out after %s", timeout))
}
