package report

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fakeyudi/scopecomms/internal/capture"
)

// Parser deserialises a rendered report back into a capture.
type Parser interface {
	Parse(data []byte) (*capture.Capture, error)
}

// JSONParser parses a JSON-encoded capture.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*capture.Capture, error) {
	var c capture.Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse JSON capture: %w", err)
	}
	return &c, nil
}

// MarkdownParser extracts the embedded payload from a Markdown report.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*capture.Capture, error) {
	content := string(data)
	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a scopecomms report: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a scopecomms report: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a scopecomms report: malformed data payload")
	}

	jsonBytes, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("not a scopecomms report: corrupted base64 payload: %w", err)
	}
	var c capture.Capture
	if err := json.Unmarshal(jsonBytes, &c); err != nil {
		return nil, fmt.Errorf("not a scopecomms report: failed to parse embedded JSON: %w", err)
	}
	return &c, nil
}

// Parse accepts either format, choosing by content.
func Parse(data []byte) (*capture.Capture, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return (&JSONParser{}).Parse(data)
	}
	return (&MarkdownParser{}).Parse(data)
}
