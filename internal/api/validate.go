package api

import (
	"net"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxNameLen is the maximum length for label fields.
const maxNameLen = 200

// maxShortStringLen is the maximum length for short identifiers
// (account ids, component names).
const maxShortStringLen = 40

// maxPasswordLen is the maximum length for passwords and secrets.
const maxPasswordLen = 256

// maxHostLen is the maximum length for hostnames/IP addresses.
const maxHostLen = 253

// validateStringLen checks that a string does not exceed maxLen runes.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen runes.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validateHost checks that a string looks like a valid hostname or IP.
func validateHost(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxHostLen {
		return field + " exceeds maximum length"
	}
	// Accept IP addresses.
	if net.ParseIP(value) != nil {
		return ""
	}
	// Basic hostname validation: no spaces, reasonable characters.
	if strings.ContainsAny(value, " \t\n\r") {
		return field + " contains invalid characters"
	}
	return ""
}

// validatePort checks that a port is within [1, 65535].
func validatePort(field string, port int) string {
	if port < 1 || port > 65535 {
		return field + " must be between 1 and 65535"
	}
	return ""
}

// validateIntRange checks that a value is within [min, max].
func validateIntRange(field string, value, min, max int) string {
	if value < min || value > max {
		return field + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)
	}
	return ""
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}
