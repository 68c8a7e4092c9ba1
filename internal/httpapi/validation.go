package httpapi

import (
	"strings"
	"unicode/utf8"
)

const maxIdentifierLen = 254

// validateLogin returns per-field problems with a login form, or nil.
func validateLogin(identifier, password string) map[string]string {
	fields := map[string]string{}

	identifier = strings.TrimSpace(identifier)
	switch {
	case identifier == "":
		fields["identifier"] = "required"
	case utf8.RuneCountInString(identifier) > maxIdentifierLen:
		fields["identifier"] = "too long"
	case strings.Contains(identifier, "@") && !validEmail(identifier):
		fields["identifier"] = "invalid email"
	}
	if password == "" {
		fields["password"] = "required"
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func validEmail(s string) bool {
	local, domainPart, ok := strings.Cut(s, "@")
	if !ok || local == "" || domainPart == "" {
		return false
	}
	return !strings.ContainsAny(domainPart, "@ ") && !strings.ContainsRune(local, ' ')
}
