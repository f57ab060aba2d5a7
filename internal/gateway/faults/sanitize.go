package faults

import (
	"regexp"
	"strings"
)

const genericMessage = "An error occurred processing your request"

var scrubPatterns = []*regexp.Regexp{
	// filesystem paths, unix and windows
	regexp.MustCompile(`(?:/[\w.\-]+){2,}`),
	regexp.MustCompile(`[A-Za-z]:\\[\w.\\\-]+`),
	// host:port and IPv4 addresses
	regexp.MustCompile(`\b[\w.\-]+:\d{2,5}\b`),
	regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`),
	// email addresses
	regexp.MustCompile(`\b[\w.+\-]+@[\w.\-]+\.\w{2,}\b`),
	// stack frames and environment variable references
	regexp.MustCompile(`\bgoroutine \d+.*`),
	regexp.MustCompile(`\b[\w/.\-]+\.go:\d+\b`),
	regexp.MustCompile(`\$\{?\w+\}?`),
}

// sensitiveKeywords collapse the whole message to the generic string. A scrub
// is not enough once a message names internals.
var sensitiveKeywords = []string{
	"password", "secret", "token", "credential", "private key",
	"api key", "apikey", "bearer",
	"sql", "sqlite", "database", "firestore", "migration",
	"panic", "runtime error", "stack trace",
	"env", "config",
}

// Sanitize strips paths, addresses, emails, stack frames and env references
// from a message, and collapses anything naming internals to a fixed generic
// string. Safe for the wire and for client-visible logs.
func Sanitize(msg string) string {
	lower := strings.ToLower(msg)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return genericMessage
		}
	}
	for _, re := range scrubPatterns {
		msg = re.ReplaceAllString(msg, "[redacted]")
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return genericMessage
	}
	return msg
}
