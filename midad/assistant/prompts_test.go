package assistant

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptsForAllActions(t *testing.T) {
	prompts := DefaultPrompts()

	for _, action := range []Action{ActionImprove, ActionRephrase, ActionSummarize, ActionExpand, ActionGrammar, ActionSuggest} {
		rendered, err := prompts.For(action, "نص تجريبي")
		if err != nil {
			t.Fatalf("rendering %v failed: %v", action, err)
		}
		if !strings.Contains(rendered, "نص تجريبي") {
			t.Fatalf("rendered prompt for %v does not contain the input text: %v", action, rendered)
		}
	}
}

func TestValidAction(t *testing.T) {
	if !ValidAction(ActionGrammar) {
		t.Fatal("grammar should be a valid action")
	}
	if ValidAction(Action("translate")) {
		t.Fatal("unknown action should be invalid")
	}
}

func TestLoadPromptOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "system: custom system\ntemplates:\n  summarize: \"short summary of: %s\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("error writing overrides: %v", err)
	}

	prompts, err := LoadPromptOverrides(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if prompts.System() != "custom system" {
		t.Fatalf("system prompt not overridden: %v", prompts.System())
	}

	rendered, err := prompts.For(ActionSummarize, "text")
	if err != nil {
		t.Fatalf("rendering failed: %v", err)
	}
	if rendered != "short summary of: text" {
		t.Fatalf("unexpected rendered prompt: %v", rendered)
	}

	// Non-overridden actions keep their defaults.
	rendered, err = prompts.For(ActionImprove, "text")
	if err != nil || !strings.Contains(rendered, "text") {
		t.Fatalf("default template lost: %v %v", rendered, err)
	}
}

func TestLoadPromptOverridesRejectsBadTemplates(t *testing.T) {
	dir := t.TempDir()

	unknownAction := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknownAction, []byte("templates:\n  translate: \"%s\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPromptOverrides(unknownAction); err == nil {
		t.Fatal("unknown action should be rejected")
	}

	missingPlaceholder := filepath.Join(dir, "missing.yaml")
	if err := os.WriteFile(missingPlaceholder, []byte("templates:\n  improve: \"no placeholder\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPromptOverrides(missingPlaceholder); err == nil {
		t.Fatal("template without placeholder should be rejected")
	}
}

func TestErrorOutcome(t *testing.T) {
	if ErrorOutcome(nil) != "ok" {
		t.Fatal("nil error should be ok")
	}
	if ErrorOutcome(ErrAuthFailed) != "auth" {
		t.Fatal("auth errors should map to auth")
	}
	if ErrorOutcome(ErrQuotaExceeded) != "quota" {
		t.Fatal("quota errors should map to quota")
	}
	if ErrorOutcome(errors.New("boom")) != "error" {
		t.Fatal("other errors should map to error")
	}
}
