// Package gate validates the device's Wi-Fi settings form and guards its
// submission: the submit control is enabled exactly when every field passes
// its rule, and nothing is posted otherwise.
package gate

import (
	"regexp"
	"strings"
	"unicode"
)

// Fields is the settings form. JSON names match what the device expects.
type Fields struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"psw"`
	Hostname   string `json:"hostname"`
}

// Field identifies one input of the form; its string form is the JSON key.
type Field string

const (
	FieldSSID       Field = "ssid"
	FieldPassphrase Field = "psw"
	FieldHostname   Field = "hostname"
)

// AllFields lists the form inputs in display order.
var AllFields = []Field{FieldSSID, FieldPassphrase, FieldHostname}

type rule struct {
	pattern *regexp.Regexp
	label   string
	hint    string
}

var rules = map[Field]rule{
	FieldSSID: {
		pattern: regexp.MustCompile(`^[\w .\-]{1,32}$`),
		label:   "Network name (SSID)",
		hint:    "1-32 letters, digits, '_', ' ', '.' or '-'",
	},
	FieldPassphrase: {
		pattern: regexp.MustCompile(`^[\x20-\x7E]{8,63}$`),
		label:   "Passphrase",
		hint:    "8-63 printable ASCII characters",
	},
	FieldHostname: {
		pattern: regexp.MustCompile(`^[a-zA-Z0-9\-]{1,15}$`),
		label:   "Hostname",
		hint:    "1-15 letters, digits or '-'",
	},
}

// Label is the human name of the field.
func (f Field) Label() string {
	return rules[f].label
}

// Hint describes what the field accepts.
func (f Field) Hint() string {
	return rules[f].hint
}

// Trim strips the white space a browser's String.prototype.trim strips:
// U+FEFF counts, U+0085 does not.
func Trim(s string) string {
	return strings.TrimFunc(s, isTrimmed)
}

func isTrimmed(r rune) bool {
	return (unicode.IsSpace(r) && r != '\u0085') || r == '\uFEFF'
}

// Check reports whether value, trimmed, satisfies field's rule. Unknown
// fields never pass.
func Check(field Field, value string) bool {
	r, ok := rules[field]
	if !ok {
		return false
	}
	return r.pattern.MatchString(Trim(value))
}

// Value returns the raw value of field.
func (f Fields) Value(field Field) string {
	switch field {
	case FieldSSID:
		return f.SSID
	case FieldPassphrase:
		return f.Passphrase
	case FieldHostname:
		return f.Hostname
	}
	return ""
}

// Trimmed returns a copy with every value trimmed.
func (f Fields) Trimmed() Fields {
	return Fields{
		SSID:       Trim(f.SSID),
		Passphrase: Trim(f.Passphrase),
		Hostname:   Trim(f.Hostname),
	}
}

// Validate reports whether all three fields pass. It never fails: invalid
// input is simply false.
func Validate(f Fields) bool {
	for _, field := range AllFields {
		if !Check(field, f.Value(field)) {
			return false
		}
	}
	return true
}

// Issue describes one field that does not pass.
type Issue struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

// Issues lists the failing fields in display order.
func Issues(f Fields) []Issue {
	var out []Issue
	for _, field := range AllFields {
		if Check(field, f.Value(field)) {
			continue
		}
		msg := field.Hint()
		if Trim(f.Value(field)) == "" {
			msg = "required; " + msg
		}
		out = append(out, Issue{Field: field, Message: msg})
	}
	return out
}
