package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"

	"boardroom/internal/models"
)

// PayloadKind identifies a side-channel payload by its required top-level key.
type PayloadKind string

const (
	PayloadKnowledge PayloadKind = "new_kb_entry"
	PayloadTask      PayloadKind = "new_task"
	PayloadChart     PayloadKind = "chart_data"
	PayloadCanvas    PayloadKind = "canvas_update"
	PayloadEmail     PayloadKind = "draft_email"
	PayloadMeeting   PayloadKind = "schedule_meeting"
)

// payloadKinds is the fixed scan order. At most one payload of each kind is
// extracted per response; extraction of one kind never blocks another.
var payloadKinds = []PayloadKind{
	PayloadKnowledge,
	PayloadTask,
	PayloadChart,
	PayloadCanvas,
	PayloadEmail,
	PayloadMeeting,
}

// Payload is the tagged union of extracted side-channel payloads. Exactly one
// of the pointer fields is set, matching Kind.
type Payload struct {
	Kind      PayloadKind
	Knowledge *models.KnowledgeEntry
	Task      *models.TaskRequest
	Chart     *models.ChartData
	Canvas    *models.CanvasUpdate
	Email     *models.EmailDraft
	Meeting   *models.MeetingInvite
}

// fencedBlock is one ```-fenced region of the raw text, including its fences.
type fencedBlock struct {
	start int // index of opening fence
	end   int // index just past closing fence
	body  string
}

// trailingCommaRe strips trailing commas before closing brackets/braces — the
// single lenient repair applied when strict parsing fails.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// minVisibleLen is the threshold below which a canned acknowledgement is
// appended, so stripping a payload block never leaves an empty bubble.
const minVisibleLen = 25

// acknowledgements per payload kind, used when the visible text is too short
// after block removal.
var acknowledgements = map[PayloadKind]string{
	PayloadKnowledge: "I've added an entry to the knowledge base.",
	PayloadTask:      "I've added a task to the board.",
	PayloadChart:     "I've put together a chart with that data.",
	PayloadCanvas:    "I've updated the canvas document.",
	PayloadEmail:     "I've drafted that email for you.",
	PayloadMeeting:   "I've prepared a calendar invite.",
}

// Extract parses raw model output for embedded fenced-JSON payload blocks and
// returns the cleaned display text plus every recognized payload. It is pure
// and idempotent: feeding the cleaned text back yields no further payloads.
//
// Blocks that fail to parse after the repair pass are left in place as visible
// text (fail-open). Parsed blocks matching no known kind are also left alone.
func Extract(raw string) (string, []Payload) {
	blocks := scanFencedBlocks(raw)
	if len(blocks) == 0 {
		return raw, nil
	}

	// Classify each block once; take the first block per kind. A block may
	// carry several kind keys: each recognized kind is extracted, and the
	// block is removed once.
	claimed := make(map[int]bool) // block index -> removed
	found := make(map[PayloadKind]Payload)
	for i, block := range blocks {
		doc, ok := parseBlock(block.body)
		if !ok {
			continue
		}
		for _, kind := range payloadKinds {
			if _, taken := found[kind]; taken {
				continue
			}
			rawValue, has := doc[string(kind)]
			if !has {
				continue
			}
			payload, ok := decodePayload(kind, rawValue)
			if !ok {
				continue
			}
			found[kind] = payload
			claimed[i] = true
		}
	}

	if len(found) == 0 {
		return raw, nil
	}

	// Remove claimed blocks (including fences) from the running text.
	var sb strings.Builder
	last := 0
	for i, block := range blocks {
		if !claimed[i] {
			continue
		}
		sb.WriteString(raw[last:block.start])
		last = block.end
	}
	sb.WriteString(raw[last:])
	cleaned := strings.TrimSpace(sb.String())

	// Collect payloads in the fixed kind order for deterministic output.
	var payloads []Payload
	for _, kind := range payloadKinds {
		if p, ok := found[kind]; ok {
			payloads = append(payloads, p)
		}
	}

	// Never show an empty bubble: describe the actions taken instead.
	if len(cleaned) < minVisibleLen {
		var acks []string
		if cleaned != "" {
			acks = append(acks, cleaned)
		}
		for _, p := range payloads {
			acks = append(acks, acknowledgements[p.Kind])
		}
		cleaned = strings.Join(acks, " ")
	}

	return cleaned, payloads
}

// scanFencedBlocks locates every ``` fenced region. An unterminated fence is
// ignored rather than swallowing the rest of the text.
func scanFencedBlocks(raw string) []fencedBlock {
	var blocks []fencedBlock
	offset := 0
	for {
		open := strings.Index(raw[offset:], "```")
		if open == -1 {
			break
		}
		open += offset

		bodyStart := open + 3
		// Skip an optional language tag on the opening fence line.
		if nl := strings.IndexByte(raw[bodyStart:], '\n'); nl != -1 {
			tag := strings.TrimSpace(raw[bodyStart : bodyStart+nl])
			if tag == "" || isLanguageTag(tag) {
				bodyStart += nl + 1
			}
		}

		closeIdx := strings.Index(raw[bodyStart:], "```")
		if closeIdx == -1 {
			break
		}
		end := bodyStart + closeIdx + 3

		blocks = append(blocks, fencedBlock{
			start: open,
			end:   end,
			body:  raw[bodyStart : bodyStart+closeIdx],
		})
		offset = end
	}
	return blocks
}

func isLanguageTag(tag string) bool {
	if len(tag) > 16 {
		return false
	}
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// parseBlock attempts strict JSON parsing, then one trailing-comma repair
// pass, before giving up on the block.
func parseBlock(body string) (map[string]json.RawMessage, bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "{") {
		return nil, false
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err == nil {
		return doc, true
	}

	repaired := trailingCommaRe.ReplaceAllString(body, "$1")
	if err := json.Unmarshal([]byte(repaired), &doc); err == nil {
		return doc, true
	}

	return nil, false
}

// decodePayload dispatches the kind key's value to the per-kind decoder.
func decodePayload(kind PayloadKind, rawValue json.RawMessage) (Payload, bool) {
	switch kind {
	case PayloadKnowledge:
		var v models.KnowledgeEntry
		if json.Unmarshal(rawValue, &v) != nil || v.Title == "" {
			return Payload{}, false
		}
		return Payload{Kind: kind, Knowledge: &v}, true
	case PayloadTask:
		var v models.TaskRequest
		if json.Unmarshal(rawValue, &v) != nil || v.Title == "" {
			return Payload{}, false
		}
		return Payload{Kind: kind, Task: &v}, true
	case PayloadChart:
		var v models.ChartData
		if json.Unmarshal(rawValue, &v) != nil || len(v.Labels) == 0 {
			return Payload{}, false
		}
		return Payload{Kind: kind, Chart: &v}, true
	case PayloadCanvas:
		var v models.CanvasUpdate
		if json.Unmarshal(rawValue, &v) != nil || v.Content == "" {
			return Payload{}, false
		}
		return Payload{Kind: kind, Canvas: &v}, true
	case PayloadEmail:
		var v models.EmailDraft
		if json.Unmarshal(rawValue, &v) != nil || v.Body == "" {
			return Payload{}, false
		}
		return Payload{Kind: kind, Email: &v}, true
	case PayloadMeeting:
		var v models.MeetingInvite
		if json.Unmarshal(rawValue, &v) != nil || v.Title == "" {
			return Payload{}, false
		}
		return Payload{Kind: kind, Meeting: &v}, true
	}
	return Payload{}, false
}
