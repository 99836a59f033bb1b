package xerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeRoundTrip(t *testing.T) {
	for _, c := range codes {
		if got := FromCode(c.code); got != c.err {
			t.Fatalf("FromCode(%q) = %v", c.code, got)
		}
		if got := Code(Wrap(c.err, "context")); got != c.code {
			t.Fatalf("Code(wrapped %v) = %q, want %q", c.err, got, c.code)
		}
	}
}

func TestCodePrefersSpecificSentinel(t *testing.T) {
	err := fmt.Errorf("login: %w", errors.Join(ErrNetwork, ErrInvalidCredentials))
	if got := Code(err); got != "invalid_credentials" {
		t.Fatalf("Code = %q", got)
	}
}

func TestUnknownCodes(t *testing.T) {
	if Code(nil) != "" || Code(errors.New("plain")) != "" {
		t.Fatal("unexpected code for unknown error")
	}
	if FromCode("nope") != nil || FromCode("") != nil {
		t.Fatal("unknown code mapped to a sentinel")
	}
}
