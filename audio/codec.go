package audio

import (
	"encoding/base64"
	"fmt"
)

// DecodeError reports a malformed base64 audio payload.
type DecodeError struct {
	// Length is the size of the rejected input in bytes.
	Length int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: malformed base64 payload (%d bytes): %v", e.Length, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeBytes encodes arbitrary bytes as standard, padded base64.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes is the exact inverse of EncodeBytes. Any input that is not
// valid padded standard base64 yields a *DecodeError.
func DecodeBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Length: len(s), Err: err}
	}
	return b, nil
}
