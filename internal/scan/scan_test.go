package scan

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func cleanInput() Input {
	return Input{
		Method:      http.MethodPost,
		ContentType: "application/json",
		Headers:     http.Header{"User-Agent": {"Mozilla/5.0"}},
		Query:       url.Values{"page": {"2"}},
		Body:        []byte(`{"name":"alice","note":"hello world"}`),
	}
}

func TestCleanRequestHasNoViolations(t *testing.T) {
	s := New(Config{})

	if violations := s.Scan(cleanInput()); len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
}

func TestScriptInjectionSignatures(t *testing.T) {
	s := New(Config{})

	cases := []string{
		`<script>alert(1)</script>`,
		`< SCRIPT src="//evil">`,
		`javascript:alert(document.cookie)`,
		`<img onerror=steal()>`,
	}

	for _, payload := range cases {
		in := cleanInput()
		in.Body = []byte(payload)
		if violations := s.Scan(in); len(violations) == 0 {
			t.Fatalf("payload %q not flagged", payload)
		}
	}
}

func TestSQLInjectionSignatures(t *testing.T) {
	s := New(Config{})

	cases := []string{
		`' UNION SELECT password FROM users`,
		`1; DROP TABLE accounts; --`,
		`' or '1'='1`,
		`x' AND 1=1; --`,
	}

	for _, payload := range cases {
		in := cleanInput()
		in.Query = url.Values{"q": {payload}}
		if violations := s.Scan(in); len(violations) == 0 {
			t.Fatalf("payload %q not flagged", payload)
		}
	}
}

func TestSuspiciousHeaderIsFlagged(t *testing.T) {
	s := New(Config{})

	in := cleanInput()
	in.Headers = http.Header{"X-Forwarded-Host": {`<script>bad()</script>`}}

	violations := s.Scan(in)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", violations)
	}
	if !strings.Contains(violations[0], "header X-Forwarded-Host") {
		t.Fatalf("violation does not name the header: %q", violations[0])
	}
}

func TestBodySizeCeiling(t *testing.T) {
	s := New(Config{MaxBodyBytes: 64})

	in := cleanInput()
	in.Body = []byte(strings.Repeat("a", 65))

	violations := s.Scan(in)
	if len(violations) != 1 || !strings.Contains(violations[0], "exceeds limit") {
		t.Fatalf("expected size violation, got %v", violations)
	}
}

func TestContentTypeRules(t *testing.T) {
	s := New(Config{})

	cases := []struct {
		method      string
		contentType string
		body        string
		wantClean   bool
	}{
		{http.MethodPost, "application/json", `{}`, true},
		{http.MethodPost, "application/json; charset=utf-8", `{}`, true},
		{http.MethodPut, "application/x-www-form-urlencoded", "a=b", true},
		{http.MethodPost, "text/xml", `<a/>`, false},
		{http.MethodPost, "", "", true},
		{http.MethodGet, "text/xml", "", true},
		{http.MethodDelete, "total garbage;;;", "x", false},
	}

	for _, tc := range cases {
		in := Input{
			Method:      tc.method,
			ContentType: tc.contentType,
			Body:        []byte(tc.body),
		}
		violations := s.Scan(in)
		if tc.wantClean && len(violations) != 0 {
			t.Fatalf("%s %q: unexpected violations %v", tc.method, tc.contentType, violations)
		}
		if !tc.wantClean && len(violations) == 0 {
			t.Fatalf("%s %q: expected a violation", tc.method, tc.contentType)
		}
	}
}

func TestMultipleViolationsAreAllReported(t *testing.T) {
	s := New(Config{MaxBodyBytes: 16})

	in := Input{
		Method:      http.MethodPost,
		ContentType: "text/xml",
		Headers:     http.Header{"Referer": {"javascript:void(0)"}},
		Query:       url.Values{"q": {"' UNION SELECT 1"}},
		Body:        []byte(strings.Repeat("<script>", 8)),
	}

	violations := s.Scan(in)
	if len(violations) < 4 {
		t.Fatalf("expected at least 4 violations, got %v", violations)
	}
}
