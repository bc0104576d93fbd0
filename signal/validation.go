package signal

import (
	"regexp"
	"strings"
)

const (
	// e164MinDigits and e164MaxDigits bound an E.164 number, excluding
	// the leading +.
	e164MinDigits = 7
	e164MaxDigits = 15
)

// e164Regex validates the basic E.164 format.
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ValidatePhoneNumber validates that a phone number follows E.164 format:
// a leading '+', a country code that does not start with 0, and 7-15
// digits total. Returns a ValidationError with a specific reason.
func ValidatePhoneNumber(phoneNumber string) error {
	if phoneNumber == "" {
		return &ValidationError{Field: "phone number", Reason: "cannot be empty"}
	}
	if !strings.HasPrefix(phoneNumber, "+") {
		return &ValidationError{Field: "phone number", Reason: "must start with '+' (E.164 format required)"}
	}
	if e164Regex.MatchString(phoneNumber) {
		return nil
	}
	return phoneNumberDetails(phoneNumber)
}

// phoneNumberDetails produces a precise reason for a failed match.
func phoneNumberDetails(phoneNumber string) error {
	if len(phoneNumber) == 1 {
		return &ValidationError{Field: "phone number", Reason: "must include country code and number after '+'"}
	}
	for _, r := range phoneNumber[1:] {
		if r < '0' || r > '9' {
			return &ValidationError{Field: "phone number", Reason: "contains non-digit characters"}
		}
	}
	digits := len(phoneNumber) - 1
	if digits < e164MinDigits {
		return &ValidationError{Field: "phone number", Reason: "too short for E.164"}
	}
	if digits > e164MaxDigits {
		return &ValidationError{Field: "phone number", Reason: "too long for E.164"}
	}
	if phoneNumber[1] == '0' {
		return &ValidationError{Field: "phone number", Reason: "country code cannot start with 0"}
	}
	return &ValidationError{Field: "phone number", Reason: "invalid format"}
}

// IsGroupID reports whether a recipient string looks like a group
// identifier rather than a phone number. Group ids are base64, so the
// presence of '=', '/', or a '+' anywhere but the first character marks
// one. This is a heuristic carried over from the protocol's own
// conventions; the wire format offers no structural tag to do better.
func IsGroupID(recipient string) bool {
	if strings.ContainsAny(recipient, "=/") {
		return true
	}
	if i := strings.LastIndex(recipient, "+"); i > 0 {
		return true
	}
	return false
}

// ValidateRecipient accepts either a valid E.164 phone number or a
// group id.
func ValidateRecipient(recipient string) error {
	if recipient == "" {
		return &ValidationError{Field: "recipient", Reason: "cannot be empty"}
	}
	if IsGroupID(recipient) {
		return nil
	}
	return ValidatePhoneNumber(recipient)
}
