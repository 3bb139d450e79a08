package cas

import "fmt"

// Decode failure codes. Every decode error names the offending offset.
const (
	FailMagic         = "FAIL_MAGIC"
	FailReservedBits  = "FAIL_RESERVED_BITS"
	FailLength        = "FAIL_LENGTH_MISMATCH"
	FailFileInfo      = "FAIL_BAD_FILEINFO"
	FailNamesUnsorted = "FAIL_NAMES_UNSORTED"
	FailNamesDup      = "FAIL_NAMES_DUPLICATE"
	FailSetUnsorted   = "FAIL_SET_UNSORTED_OR_DUP"
	FailSetTooSmall   = "FAIL_SET_TOO_SMALL"
)

// DecodeError reports why a byte buffer is not a valid CAS node.
type DecodeError struct {
	// Offset is the byte offset of the violation within the buffer.
	Offset int

	// Code is one of the Fail* constants.
	Code string

	// Reason is a short human-readable explanation.
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", e.Code, e.Offset, e.Reason)
}

func decodeErr(offset int, code, format string, args ...any) *DecodeError {
	return &DecodeError{Offset: offset, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// EncodeError reports invalid input to one of the Encode functions.
type EncodeError struct {
	Code   string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func encodeErr(code, format string, args ...any) *EncodeError {
	return &EncodeError{Code: code, Reason: fmt.Sprintf(format, args...)}
}
