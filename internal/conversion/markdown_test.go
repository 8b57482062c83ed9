package conversion

import (
	"strings"
	"testing"
)

func TestConvert_Basics(t *testing.T) {
	converter := NewConverter()

	result, err := converter.Convert("**bold** and `code`")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.Contains(result, "<strong>bold</strong>") || !strings.Contains(result, "<code>code</code>") {
		t.Errorf("unexpected output: %s", result)
	}
}

func TestConvert_GFMTable(t *testing.T) {
	result, err := NewConverter().Convert("| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.Contains(result, "<table>") {
		t.Errorf("expected table, got: %s", result)
	}
}

func TestDefaultConverter_Highlighting(t *testing.T) {
	result, err := DefaultConverter().Convert("```go\nfunc main() {}\n```")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.Contains(result, "<pre") {
		t.Errorf("expected <pre>, got: %s", result)
	}
	if strings.Contains(result, "```") {
		t.Errorf("code fence leaked into output: %s", result)
	}
}

func TestMermaidWithSanitization(t *testing.T) {
	result, err := DefaultConverter().Convert("```mermaid\ngraph TD\n    A --> B\n```")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.Contains(result, `class="mermaid"`) {
		t.Errorf("expected class=\"mermaid\" after sanitization, got:\n%s", result)
	}
	if strings.Contains(result, "<script") {
		t.Errorf("mermaid script should not be emitted, got:\n%s", result)
	}
}

func TestSanitizer_StripsScripts(t *testing.T) {
	result, err := DefaultConverter().Convert("hello <script>alert(1)</script> <a href=\"javascript:x\">x</a>")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if strings.Contains(result, "<script") || strings.Contains(result, "javascript:") {
		t.Errorf("unsafe content survived: %s", result)
	}
}

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`<a href="x">'&'</a>`)
	want := "&lt;a href=&quot;x&quot;&gt;&#39;&amp;&#39;&lt;/a&gt;"
	if got != want {
		t.Errorf("EscapeHTML() = %q, want %q", got, want)
	}
}

func TestNormalizeNewlines(t *testing.T) {
	if got := NormalizeNewlines(`line one\nline two`); got != "line one\nline two" {
		t.Errorf("NormalizeNewlines() = %q", got)
	}
	if got := NormalizeNewlines("already\nfine"); got != "already\nfine" {
		t.Errorf("NormalizeNewlines() changed real newlines: %q", got)
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		isFile bool
		want   string
	}{
		{"text", "hi", false, "hi"},
		{"escaped newline", `a\nb`, false, "a\nb"},
		{"empty text", "", false, FallbackReply},
		{"blank text", "  \n ", false, FallbackReply},
		{"empty file", "", true, ""},
		{"file body untouched", `a\nb`, true, `a\nb`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MessageText(tt.body, tt.isFile); got != tt.want {
				t.Errorf("MessageText(%q, %v) = %q, want %q", tt.body, tt.isFile, got, tt.want)
			}
		})
	}
}
