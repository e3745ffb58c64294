package validate

import (
	"strings"
	"testing"
)

func TestRequired(t *testing.T) {
	if Required("  \t") {
		t.Fatalf("blank value must not pass")
	}
	if !Required(" node_1 ") {
		t.Fatalf("non-blank value must pass")
	}
}

func TestMaxLenCountsRunes(t *testing.T) {
	if !MaxLen("节点节点", 4) {
		t.Fatalf("four runes must fit a limit of four")
	}
	if MaxLen(strings.Repeat("a", MaxIDLength+1), MaxIDLength) {
		t.Fatalf("over-long id must fail")
	}
}
