package serial

import (
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 30, 5, 0, time.UTC)
	a, err := New(PrefixOrder, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasPrefix(a, "ORD20260314123005") || len(a) != len("ORD20260314123005")+6 {
		t.Fatalf("serial = %q", a)
	}
	b, _ := New(PrefixOrder, now)
	if a == b {
		t.Fatalf("two serials in the same second collided: %q", a)
	}
}
