package ofx

import (
	"bytes"
	"path/filepath"
	"strings"
)

var allowedExtensions = map[string]bool{
	".ofx": true,
	".qfx": true,
}

// Sniff runs the cheap pre-parse checks on an uploaded file: a known
// extension, an OFX header marker, the signon section and a bank or
// credit-card message set.
func Sniff(filename string, content []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return &SignatureError{Filename: filename, Reason: "file must have an .ofx or .qfx extension"}
	}

	upper := bytes.ToUpper(content)

	if !bytes.Contains(upper, []byte("OFXHEADER")) &&
		!bytes.Contains(upper, []byte("<?OFX")) &&
		!bytes.Contains(upper, []byte("<OFX>")) {
		return &SignatureError{Filename: filename, Reason: "missing OFX header"}
	}
	if !bytes.Contains(upper, []byte("<SIGNONMSGSRSV1>")) {
		return &SignatureError{Filename: filename, Reason: "missing signon section"}
	}
	if !bytes.Contains(upper, []byte("<BANKMSGSRSV1>")) &&
		!bytes.Contains(upper, []byte("<CREDITCARDMSGSRSV1>")) {
		return &SignatureError{Filename: filename, Reason: "missing bank or credit-card statement section"}
	}

	return nil
}
