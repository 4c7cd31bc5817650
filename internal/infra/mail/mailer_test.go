package mail

import (
	"strings"
	"testing"

	gomail "github.com/wneessen/go-mail"
)

func TestBuildMessage(t *testing.T) {
	recipients := []string{"a@example.com", "b@example.com"}
	msg, err := buildMessage("alerts@pricewatch.local", recipients, "[HIGH] Kettle", "body")
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	bcc := msg.GetBccString()
	if len(bcc) != 2 || !strings.Contains(bcc[0], "a@example.com") || !strings.Contains(bcc[1], "b@example.com") {
		t.Fatalf("unexpected bcc %v", bcc)
	}
	if got := msg.GetGenHeader(gomail.HeaderSubject); len(got) != 1 || got[0] != "[HIGH] Kettle" {
		t.Fatalf("unexpected subject %v", got)
	}
}

func TestBuildMessage_Rejects(t *testing.T) {
	if _, err := buildMessage("alerts@pricewatch.local", nil, "s", "b"); err == nil {
		t.Fatal("expected error for empty recipients")
	}
	if _, err := buildMessage("not an address", []string{"a@example.com"}, "s", "b"); err == nil {
		t.Fatal("expected error for invalid sender")
	}
	if _, err := buildMessage("alerts@pricewatch.local", []string{"broken"}, "s", "b"); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}
