package tests

import (
	"errors"
	"strings"
	"testing"

	"midad_platform/midad/assistant"
)

func TestAssistantGenerate(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	env.ai.reply = "نص أفضل بكثير"

	result, err := user.generate("improve", "نص بسيط")
	if err != nil {
		t.Fatal(err)
	}
	if result != "نص أفضل بكثير" {
		t.Fatalf("invalid result %v", result)
	}

	// The exchange lands in the history.
	history, err := user.assistantHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Message != "نص بسيط" || history[0].Response != "نص أفضل بكثير" {
		t.Fatalf("invalid history %v", history)
	}

	// History is private.
	other, err := env.newUser("xyz", "")
	if err != nil {
		t.Fatal(err)
	}
	otherHistory, err := other.assistantHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(otherHistory) != 0 {
		t.Fatalf("history leaked across users: %v", otherHistory)
	}
}

func TestAssistantRejectsBadRequests(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.generate("improve", ""); err == nil {
		t.Fatal("empty text should be rejected")
	}

	if _, err := user.generate("translate", "نص"); err == nil {
		t.Fatal("unknown action should be rejected")
	}

	anon := env.newClient()
	if _, err := anon.generate("improve", "نص"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAssistantErrorMapping(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	env.ai.err = assistant.ErrAuthFailed
	if _, err := user.generate("improve", "نص"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("auth failure should surface as 401, got %v", err)
	}

	env.ai.err = assistant.ErrQuotaExceeded
	if _, err := user.generate("improve", "نص"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("quota failure should surface as 429, got %v", err)
	}

	// Failed generations are not recorded.
	history, err := user.assistantHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("failed generations should not be stored: %v", history)
	}
}

func TestAssistantClearHistory(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := user.generate("summarize", "نص طويل"); err != nil {
			t.Fatal(err)
		}
	}

	history, err := user.assistantHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(history))
	}

	if err := user.Delete("/assistant/history").Do(nil); err != nil {
		t.Fatal(err)
	}

	history, err = user.assistantHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("history should be empty after clear, got %v", history)
	}
}
