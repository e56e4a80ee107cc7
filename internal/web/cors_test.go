package web

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestSanitizeOriginsNormalizesAndDeduplicates(t *testing.T) {
	t.Parallel()

	sanitized, err := sanitizeOrigins(zaptest.NewLogger(t), []string{
		" https://app.example.com ",
		"HTTPS://app.example.com/",
		"http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sanitized) != 2 {
		t.Fatalf("expected 2 origins, got %d: %v", len(sanitized), sanitized)
	}
	for _, origin := range sanitized {
		if origin != "https://app.example.com" && origin != "http://localhost:3000" {
			t.Fatalf("unexpected origin %q", origin)
		}
	}
}

func TestSanitizeOriginsRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		origins []string
	}{
		{name: "empty list", origins: nil},
		{name: "only blanks", origins: []string{"  ", ""}},
		{name: "wildcard", origins: []string{"*"}},
		{name: "missing scheme", origins: []string{"app.example.com"}},
		{name: "path segment", origins: []string{"https://app.example.com/callback"}},
		{name: "query", origins: []string{"https://app.example.com?x=1"}},
		{name: "unsupported scheme", origins: []string{"ftp://app.example.com"}},
	}
	for _, testCase := range cases {
		if _, err := sanitizeOrigins(zaptest.NewLogger(t), testCase.origins); err == nil {
			t.Fatalf("%s: expected error", testCase.name)
		}
	}
}

func TestConfigureCORSBuildsMiddleware(t *testing.T) {
	t.Parallel()

	handler, err := ConfigureCORS(zaptest.NewLogger(t), []string{"https://app.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler == nil {
		t.Fatalf("expected a handler")
	}
}
