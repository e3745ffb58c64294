package validate

import (
	"strings"
	"unicode/utf8"
)

// MaxIDLength bounds user, content and transaction identifiers accepted from clients.
const MaxIDLength = 128

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

func MaxLen(value string, limit int) bool {
	return utf8.RuneCountInString(value) <= limit
}
