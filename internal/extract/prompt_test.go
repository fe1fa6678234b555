package extract

import (
	"strings"
	"testing"
)

func TestBuildChunkPromptFirstChunk(t *testing.T) {
	prompt := BuildChunkPrompt("hb101.txt", "", "SECTION 1. Short title.")

	if !strings.Contains(prompt, "Document: hb101.txt") {
		t.Error("missing document name")
	}
	if !strings.Contains(prompt, "SECTION TO ANALYZE:\nSECTION 1. Short title.") {
		t.Error("missing chunk text")
	}
	if strings.Contains(prompt, "CONTEXT FROM PREVIOUS SECTIONS") {
		t.Error("first chunk prompt carries context header")
	}
}

func TestBuildChunkPromptWithMemory(t *testing.T) {
	memCtx := "KEY POINTS IDENTIFIED SO FAR:\n- [funding] appropriates $5M (Sec. 2)\n"
	prompt := BuildChunkPrompt("hb101.txt", memCtx, "SECTION 3. Penalties.")

	if !strings.Contains(prompt, "CONTEXT FROM PREVIOUS SECTIONS:\n"+memCtx) {
		t.Error("memory context not embedded")
	}
	if !strings.Contains(prompt, "CURRENT SECTION TO ANALYZE:\nSECTION 3. Penalties.") {
		t.Error("missing chunk text")
	}
	if !strings.Contains(prompt, "Only extract new points") {
		t.Error("missing dedup instruction")
	}
}

func TestSystemPromptSchema(t *testing.T) {
	// Enum values in the prompt must stay in sync with the validator.
	for _, v := range []string{"funding", "change", "classification", "requirement", "permission", "timeline", "penalty", "other", "high", "medium", "low"} {
		if !strings.Contains(SystemPrompt, `"`+v+`"`) {
			t.Errorf("system prompt missing enum value %q", v)
		}
	}
	for _, field := range []string{"point_type", "description", "entities", "reference", "citation", "page_number", "confidence"} {
		if !strings.Contains(SystemPrompt, `"`+field+`"`) {
			t.Errorf("system prompt missing field %q", field)
		}
	}
}
