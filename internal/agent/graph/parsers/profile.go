package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// basic safety limit to avoid pathological model outputs
const maxProfileLen = 64 * 1024 // 64KB

// ProfileResult is the identification extractor's contract: the caller's
// profile fields plus the greeting or clarifying question to show them.
// Missing fields stay empty; the caller decides what that means.
type ProfileResult struct {
	ClientName string `json:"client_name"`
	Gender     string `json:"gender"`
	Response   string `json:"response"`
}

// ParseProfile extracts the first balanced JSON object from raw model output
// and decodes the profile contract from it. The model wraps its JSON in prose
// or code fences often enough that a plain json.Unmarshal of the whole output
// is useless; scanning for the first balanced {...} tolerates both.
func ParseProfile(content string) (*ProfileResult, error) {
	if content == "" {
		return nil, fmt.Errorf("empty profile output")
	}
	if len(content) > maxProfileLen {
		return nil, fmt.Errorf("profile output too large")
	}

	obj, ok := firstJSONObject(content)
	if !ok {
		logx.Warn().Str("snippet", snippet(content)).Msg("no JSON object in profile output")
		return nil, fmt.Errorf("no JSON object in profile output")
	}

	var res ProfileResult
	if err := json.Unmarshal([]byte(obj), &res); err != nil {
		logx.Warn().Err(err).Str("snippet", snippet(obj)).Msg("malformed profile JSON")
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	res.ClientName = strings.TrimSpace(res.ClientName)
	res.Gender = strings.TrimSpace(res.Gender)
	res.Response = strings.TrimSpace(res.Response)
	return &res, nil
}

// firstJSONObject returns the first balanced top-level {...} span in s.
// String literals are honored so braces inside values do not break the scan.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

const maxErrSnippet = 200

func snippet(s string) string {
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet] + "..."
}
