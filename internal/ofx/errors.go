package ofx

import "fmt"

// MalformedDocumentError is returned when the text cannot be read as an OFX
// header/body structure at all.
type MalformedDocumentError struct {
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed OFX document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed OFX document: %s", e.Reason)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// SignatureError is returned by Sniff when a file does not look like OFX.
type SignatureError struct {
	Filename string
	Reason   string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}
