package handlers

import "testing"

func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		action string
		ok     bool
	}{
		{"clear", "/clear", "clear_session", true},
		{"tasks", "/tasks", "open_tasks", true},
		{"knowledge", "/knowledge", "open_knowledge", true},
		{"canvas", "/canvas", "open_canvas", true},
		{"reload", "/reload", "reload", true},
		{"uppercase keyword", "/CLEAR", "clear_session", true},
		{"leading whitespace", "  /clear", "clear_session", true},
		{"trailing words ignored", "/tasks please", "open_tasks", true},
		{"unknown keyword", "/unknown", "", false},
		{"plain text", "hello everyone", "", false},
		{"slash mid-sentence", "50/50 split", "", false},
		{"bare slash", "/", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, ok := parseSlashCommand(tt.text)
			if ok != tt.ok {
				t.Fatalf("parseSlashCommand(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if action != tt.action {
				t.Errorf("parseSlashCommand(%q) action = %q, want %q", tt.text, action, tt.action)
			}
		})
	}
}
