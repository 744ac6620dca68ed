package form

import (
	"strings"

	"github.com/solatis/stagedoor/internal/types"
)

// DefaultRequired is the required field set of the submission core.
// The relay endpoint additionally requires the message body (ideas).
var DefaultRequired = []string{types.FieldFullName, types.FieldEmail}

// ValidationResult reports whether a submission attempt may proceed.
// Produced fresh per attempt; never persisted.
type ValidationResult struct {
	// MissingFields names required fields that are empty, whitespace-only,
	// or malformed. Empty means the values passed validation.
	MissingFields []string
}

// Valid reports whether no required field is missing or malformed.
func (r ValidationResult) Valid() bool {
	return len(r.MissingFields) == 0
}

// Validate checks the default required field set (fullName, email).
// Pure function: no side effects, deterministic for a given input.
func Validate(v types.FormValues) ValidationResult {
	return ValidateRequired(v, DefaultRequired...)
}

// ValidateRequired checks an explicit required field set. A required field
// fails when empty or whitespace-only; email additionally fails when present
// but not of a minimal local@domain.tld shape. Optional fields never fail.
func ValidateRequired(v types.FormValues, required ...string) ValidationResult {
	t := v.Trimmed()

	var missing []string
	for _, field := range required {
		var val string
		switch field {
		case types.FieldFullName:
			val = t.FullName
		case types.FieldEmail:
			val = t.Email
		case types.FieldWebsite:
			val = t.Website
		case types.FieldIdeas:
			val = t.Ideas
		case types.FieldHeardFrom:
			val = t.HeardFrom
		}
		if val == "" {
			missing = append(missing, field)
		}
	}

	// A present but malformed email fails even if not strictly empty.
	if t.Email != "" && !ValidEmail(t.Email) && !contains(missing, types.FieldEmail) {
		missing = append(missing, types.FieldEmail)
	}

	return ValidationResult{MissingFields: missing}
}

// ValidEmail checks a minimal local@domain.tld shape: ASCII, exactly one '@'
// with a non-empty local part, at least one '.' after it with characters on
// both sides, and no embedded whitespace. Deliberately looser than RFC 5322;
// the mail server is the final arbiter.
func ValidEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7e || c <= 0x20 {
			return false
		}
	}

	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
