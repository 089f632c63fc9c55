package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/WessleyAI/festa/pkg/solar"
)

type mockCompleter struct {
	reply string
	err   error
	calls int
	last  []solar.Message
}

func (m *mockCompleter) Complete(_ context.Context, msgs []solar.Message) (string, error) {
	m.calls++
	m.last = msgs
	return m.reply, m.err
}

func TestPromptGenerator_Messages(t *testing.T) {
	c := &mockCompleter{reply: "추천 결과"}
	got, err := NewGenerator(c).Generate(context.Background(), "주말 축제 추천해줘", "- id=1, 제목: A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "추천 결과" {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(c.last) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.last))
	}
	if c.last[0].Role != "system" || c.last[0].Content != SystemPrompt {
		t.Errorf("unexpected system message: %+v", c.last[0])
	}
	user := c.last[1]
	if user.Role != "user" {
		t.Errorf("expected user role, got %q", user.Role)
	}
	for _, want := range []string{"주말 축제 추천해줘", "- id=1, 제목: A", "[사용자 질문]", "[행사 목록]"} {
		if !strings.Contains(user.Content, want) {
			t.Errorf("user turn missing %q", want)
		}
	}
}

func TestPromptGenerator_SingleAttempt(t *testing.T) {
	c := &mockCompleter{err: errors.New("quota exceeded")}
	if _, err := NewGenerator(c).Generate(context.Background(), "q", "ctx"); err == nil {
		t.Fatal("expected error")
	}
	if c.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", c.calls)
	}
}
