package memory

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"strings"
)

// Transcript line types the filter recognizes (§6.2).
const (
	recordTypeUser      = "user"
	recordTypeAssistant = "assistant"
	recordTypeSystem    = "system"
	recordTypeMeta      = "meta"
	recordTypeSummary   = "summary"
)

// contentItemKinds are the structured content-array item types a
// message's content may contain (§6.2).
const (
	contentItemText       = "text"
	contentItemToolUse    = "tool_use"
	contentItemToolResult = "tool_result"
	contentItemThinking   = "thinking"
)

// rawMessage mirrors the host transcript's nested "message" object.
// Content is polymorphic: a plain string, or an array of structured
// items — handled via rawContentItem + json.RawMessage (§4.3, §6.2).
type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// rawContentItem is one element of a structured content array.
type rawContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	// tool_use/tool_result fields are intentionally not unmarshaled: the
	// filter elides them to a marker and never needs their payload.
}

// rawTranscriptLine mirrors one line of the host's transcript file.
type rawTranscriptLine struct {
	Type           string      `json:"type"`
	Message        *rawMessage `json:"message"`
	IsSidechain    bool        `json:"isSidechain"`
	SessionID      string      `json:"sessionId"`
	ParentSessionID string     `json:"parentSessionId"`
}

// FilterTranscript reads raw, line-delimited transcript JSON and returns
// the normalized {role, text} sequence (§4.3). It never raises on a
// single malformed line — those are skipped and logged (§4.15, §8.3).
// The filter is pure beyond logging: it reads only the raw bytes passed in
// and writes nothing.
func FilterTranscript(raw []byte, topLevelSessionID string, logger *log.Logger) []FilteredMessage {
	if logger == nil {
		logger = log.New(os.Stderr, "memory/filter: ", log.LstdFlags)
	}

	var out []FilteredMessage
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec rawTranscriptLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logger.Printf("skipping malformed transcript line: %v", err)
			continue
		}

		if isSidechainRecord(rec, topLevelSessionID) {
			continue
		}
		switch rec.Type {
		case recordTypeSystem, recordTypeMeta, recordTypeSummary:
			continue
		case recordTypeUser, recordTypeAssistant:
			// fall through to extraction below
		default:
			continue
		}

		if rec.Message == nil {
			continue
		}

		text, ok := extractText(rec.Message.Content)
		if !ok {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		out = append(out, FilteredMessage{Role: rec.Message.Role, Text: text})
	}

	return out
}

// isSidechainRecord implements §4.3's sidechain filter: a record is
// dropped if explicitly flagged, or if it carries a nested session id
// distinct from the top-level session.
func isSidechainRecord(rec rawTranscriptLine, topLevelSessionID string) bool {
	if rec.IsSidechain {
		return true
	}
	if topLevelSessionID != "" && rec.SessionID != "" && rec.SessionID != topLevelSessionID {
		return true
	}
	if rec.ParentSessionID != "" {
		return true
	}
	return false
}

// extractText normalizes polymorphic content (string | []item) to plain
// text, eliding tool_use/tool_result items but leaving an ordering
// marker in their place (§4.3).
func extractText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	// Try plain string first.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	// Otherwise, a structured content array.
	var items []rawContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", false
	}

	var b strings.Builder
	for _, item := range items {
		switch item.Type {
		case contentItemText:
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(item.Text)
		case contentItemThinking:
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(item.Thinking)
		case contentItemToolUse:
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString("[tool_use]")
		case contentItemToolResult:
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString("[tool_result]")
		}
	}
	return b.String(), true
}
