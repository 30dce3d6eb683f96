package scan

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Signature patterns for script and SQL injection probes. Tuned for low
// false-positive rates on JSON payloads rather than completeness; the gate
// is a tripwire, not a WAF.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon(?:error|load|click|mouseover|focus)\s*=`),
	regexp.MustCompile(`(?i)\bunion(?:\s+all)?\s+select\b`),
	regexp.MustCompile(`(?i)\b(?:insert\s+into|drop\s+table|delete\s+from|truncate\s+table)\b`),
	regexp.MustCompile(`(?i)'\s*or\s*'1'\s*=\s*'1`),
	regexp.MustCompile(`(?i);\s*--`),
}

var defaultContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// Config tunes the scanner.
type Config struct {
	MaxBodyBytes        int64    // 0 means 1 MiB
	AllowedContentTypes []string // nil means JSON and form encodings
}

// Input is the already-captured request surface to validate.
type Input struct {
	Method      string
	ContentType string
	Headers     http.Header
	Query       url.Values
	Body        []byte
}

// Scanner validates request inputs against a fixed policy.
type Scanner struct {
	cfg Config
}

// New creates a scanner. Zero config fields take the defaults above.
func New(cfg Config) *Scanner {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = defaultContentTypes
	}
	return &Scanner{cfg: cfg}
}

// Scan returns the list of violations found, empty when the input is clean.
func (s *Scanner) Scan(in Input) []string {
	var violations []string

	if mutating(in.Method) {
		if v := s.checkContentType(in); v != "" {
			violations = append(violations, v)
		}
	}

	if int64(len(in.Body)) > s.cfg.MaxBodyBytes {
		violations = append(violations,
			fmt.Sprintf("body size %d exceeds limit %d", len(in.Body), s.cfg.MaxBodyBytes))
	}

	for name, values := range in.Headers {
		for _, value := range values {
			if pattern := matchSuspicious(value); pattern != "" {
				violations = append(violations,
					fmt.Sprintf("suspicious pattern %q in header %s", pattern, name))
			}
		}
	}

	for name, values := range in.Query {
		for _, value := range values {
			if pattern := matchSuspicious(value); pattern != "" {
				violations = append(violations,
					fmt.Sprintf("suspicious pattern %q in query parameter %s", pattern, name))
			}
		}
	}

	if pattern := matchSuspicious(string(in.Body)); pattern != "" {
		violations = append(violations,
			fmt.Sprintf("suspicious pattern %q in request body", pattern))
	}

	return violations
}

func (s *Scanner) checkContentType(in Input) string {
	if len(in.Body) == 0 && in.ContentType == "" {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(in.ContentType)
	if err != nil {
		return fmt.Sprintf("unparseable content type %q", in.ContentType)
	}
	for _, allowed := range s.cfg.AllowedContentTypes {
		if mediaType == allowed {
			return ""
		}
	}
	return fmt.Sprintf("unsupported content type %q", mediaType)
}

func mutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func matchSuspicious(value string) string {
	if value == "" {
		return ""
	}
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(value) {
			return pattern.String()
		}
	}
	return ""
}
