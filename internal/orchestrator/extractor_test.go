package orchestrator

import (
	"strings"
	"testing"
)

func TestExtract_PlainTextUntouched(t *testing.T) {
	raw := "I think we should focus on the European market first."
	cleaned, payloads := Extract(raw)

	if cleaned != raw {
		t.Errorf("plain text was modified: %q", cleaned)
	}
	if len(payloads) != 0 {
		t.Errorf("expected no payloads, got %d", len(payloads))
	}
}

func TestExtract_KnowledgeEntry(t *testing.T) {
	raw := "Here is a summary of what we agreed on.\n\n" +
		"```json\n" +
		`{"new_kb_entry": {"title": "Q3 Pricing", "category": "note", "content": "Tiered at $29/$79/$199"}}` +
		"\n```\n\nLet me know if anything is off."

	cleaned, payloads := Extract(raw)

	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	p := payloads[0]
	if p.Kind != PayloadKnowledge || p.Knowledge == nil {
		t.Fatalf("expected knowledge payload, got %+v", p)
	}
	if p.Knowledge.Title != "Q3 Pricing" {
		t.Errorf("title = %q", p.Knowledge.Title)
	}
	if strings.Contains(cleaned, "```") || strings.Contains(cleaned, "new_kb_entry") {
		t.Errorf("payload block left in display text: %q", cleaned)
	}
	if !strings.Contains(cleaned, "summary of what we agreed") {
		t.Errorf("surrounding prose lost: %q", cleaned)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	raw := "Done.\n```json\n" +
		`{"new_task": {"title": "Review contract", "priority": "high"}}` +
		"\n```\nAnything else?"

	cleaned, payloads := Extract(raw)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload on first pass, got %d", len(payloads))
	}

	again, more := Extract(cleaned)
	if len(more) != 0 {
		t.Errorf("second pass produced %d payloads, want 0", len(more))
	}
	if again != cleaned {
		t.Errorf("second pass changed text: %q -> %q", cleaned, again)
	}
}

func TestExtract_MalformedBlockFailsOpen(t *testing.T) {
	raw := "Look at this:\n```json\n" +
		`{"chart_data": {"title": "Broken" "labels": [}}` + // unrepairable
		"\n```\ndone."

	cleaned, payloads := Extract(raw)

	if len(payloads) != 0 {
		t.Fatalf("malformed block produced payloads: %+v", payloads)
	}
	if cleaned != raw {
		t.Errorf("malformed block should remain visible verbatim")
	}
}

func TestExtract_TrailingCommaRepaired(t *testing.T) {
	raw := "```json\n" +
		`{"new_kb_entry": {"title": "Repair", "category": "note", "content": "body",}}` +
		"\n```\nAdded it to our notes for next time."

	_, payloads := Extract(raw)

	if len(payloads) != 1 || payloads[0].Kind != PayloadKnowledge {
		t.Fatalf("trailing-comma block not repaired: %+v", payloads)
	}
}

func TestExtract_MultipleKindsFixedOrder(t *testing.T) {
	raw := "Plan is ready, filing both now.\n" +
		"```json\n" + `{"new_task": {"title": "Ship v2", "priority": "medium"}}` + "\n```\n" +
		"```json\n" + `{"new_kb_entry": {"title": "Launch plan", "category": "note", "content": "v2 in June"}}` + "\n```\n"

	_, payloads := Extract(raw)

	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}
	// Output order follows the fixed kind order, not block order.
	if payloads[0].Kind != PayloadKnowledge || payloads[1].Kind != PayloadTask {
		t.Errorf("wrong kind order: %s, %s", payloads[0].Kind, payloads[1].Kind)
	}
}

func TestExtract_OneBlockCarryingTwoKinds(t *testing.T) {
	raw := "Noted the decision and queued the follow-up work.\n" +
		"```json\n" +
		`{"new_kb_entry": {"title": "Pricing decision", "category": "note", "content": "Tiered model approved"},` +
		` "new_task": {"title": "Update pricing page", "priority": "high"}}` +
		"\n```\n"

	cleaned, payloads := Extract(raw)

	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}
	if payloads[0].Kind != PayloadKnowledge || payloads[0].Knowledge == nil {
		t.Fatalf("expected knowledge payload first, got %+v", payloads[0])
	}
	if payloads[1].Kind != PayloadTask || payloads[1].Task == nil {
		t.Fatalf("expected task payload second, got %+v", payloads[1])
	}
	if payloads[1].Task.Title != "Update pricing page" {
		t.Errorf("task title = %q", payloads[1].Task.Title)
	}
	if strings.Contains(cleaned, "```") {
		t.Errorf("block should be removed once: %q", cleaned)
	}
}

func TestExtract_DuplicateKindKeepsFirstBlock(t *testing.T) {
	raw := "Comparing options.\n" +
		"```json\n" + `{"canvas_update": {"title": "Draft A", "content": "first version"}}` + "\n```\n" +
		"```json\n" + `{"canvas_update": {"title": "Draft B", "content": "second version"}}` + "\n```\n"

	cleaned, payloads := Extract(raw)

	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	if payloads[0].Canvas.Title != "Draft A" {
		t.Errorf("expected first block to win, got %q", payloads[0].Canvas.Title)
	}
	// The unclaimed second block stays visible.
	if !strings.Contains(cleaned, "Draft B") {
		t.Errorf("second block should remain in display text: %q", cleaned)
	}
}

func TestExtract_ShortRemainderGetsAcknowledgement(t *testing.T) {
	raw := "```json\n" +
		`{"draft_email": {"to": "board@example.com", "subject": "Update", "body": "Q3 numbers attached."}}` +
		"\n```"

	cleaned, payloads := Extract(raw)

	if len(payloads) != 1 || payloads[0].Kind != PayloadEmail {
		t.Fatalf("expected email payload, got %+v", payloads)
	}
	if cleaned == "" {
		t.Fatal("cleaned text must never be empty when a payload was taken")
	}
	if !strings.Contains(cleaned, "drafted that email") {
		t.Errorf("expected acknowledgement sentence, got %q", cleaned)
	}
}

func TestExtract_NonPayloadCodeBlockLeftAlone(t *testing.T) {
	raw := "Use this snippet:\n```go\nfmt.Println(\"hi\")\n```\nIt compiles."

	cleaned, payloads := Extract(raw)

	if len(payloads) != 0 {
		t.Errorf("code block produced payloads: %+v", payloads)
	}
	if cleaned != raw {
		t.Errorf("non-payload code block was removed")
	}
}

func TestExtract_UnterminatedFenceIgnored(t *testing.T) {
	raw := "Thinking out loud.\n```json\n{\"new_task\": {\"title\": \"never closed\"}}"

	cleaned, payloads := Extract(raw)

	if len(payloads) != 0 {
		t.Errorf("unterminated fence produced payloads: %+v", payloads)
	}
	if cleaned != raw {
		t.Errorf("unterminated fence altered the text")
	}
}

func TestExtract_MissingRequiredFieldRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"kb entry without title", `{"new_kb_entry": {"category": "note", "content": "orphan"}}`},
		{"chart without labels", `{"chart_data": {"title": "Empty", "type": "BAR"}}`},
		{"email without body", `{"draft_email": {"to": "a@b.c", "subject": "hi"}}`},
		{"canvas without content", `{"canvas_update": {"title": "Blank"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "```json\n" + tt.body + "\n```\nplus enough prose to keep the bubble."
			cleaned, payloads := Extract(raw)
			if len(payloads) != 0 {
				t.Errorf("invalid payload accepted: %+v", payloads)
			}
			if cleaned != raw {
				t.Errorf("rejected block should stay visible")
			}
		})
	}
}

func TestExtract_MeetingAndChartTogether(t *testing.T) {
	raw := "Here is the revenue picture and a slot to discuss it.\n" +
		"```json\n" +
		`{"chart_data": {"title": "Revenue", "type": "LINE", "labels": ["Jan", "Feb"], "datasets": [{"label": "2026", "data": [10, 20]}]}}` +
		"\n```\n" +
		"```json\n" +
		`{"schedule_meeting": {"title": "Revenue review", "startTime": "2026-09-01T10:00:00Z", "endTime": "2026-09-01T11:00:00Z"}}` +
		"\n```\n"

	_, payloads := Extract(raw)

	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}
	if payloads[0].Kind != PayloadChart || payloads[0].Chart.Datasets[0].Data[1] != 20 {
		t.Errorf("chart payload wrong: %+v", payloads[0])
	}
	if payloads[1].Kind != PayloadMeeting || payloads[1].Meeting.Title != "Revenue review" {
		t.Errorf("meeting payload wrong: %+v", payloads[1])
	}
}
