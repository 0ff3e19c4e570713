package handoff

import "testing"

func TestAnalyzeDeclineWithHandoff(t *testing.T) {
	decision := Analyze("Do you ship to Mars?", "I'm not sure about that. I can connect you with a human agent who can help.")
	if decision.Label != Handoff {
		t.Fatalf("expected handoff, got %s", decision.Label)
	}
	if !decision.Suggested() {
		t.Fatal("expected handoff to be suggested")
	}
	if decision.Score < 6 {
		t.Fatalf("expected decline and handoff phrases to add up, got %d", decision.Score)
	}
}

func TestAnalyzeDeclineOnly(t *testing.T) {
	decision := Analyze("What is the CEO's salary?", "I don’t have that information, sorry.")
	if decision.Label != Declined {
		t.Fatalf("expected declined, got %s", decision.Label)
	}
}

func TestAnalyzePlainAnswer(t *testing.T) {
	decision := Analyze("What are your hours?", "We are open Monday to Friday, 9am to 5pm.")
	if decision.Label != Answered {
		t.Fatalf("expected answered, got %s", decision.Label)
	}
	if decision.Suggested() {
		t.Fatal("plain answers should not suggest a handoff")
	}
}

func TestAnalyzeUserAskedForHuman(t *testing.T) {
	direct := Analyze("Can I talk to a human?", "Sure, our support team will reach you shortly.")
	indirect := Analyze("Where is my order?", "Our support team will reach you shortly.")
	if direct.Label != Handoff || indirect.Label != Handoff {
		t.Fatalf("expected handoff for both, got %s and %s", direct.Label, indirect.Label)
	}
	if direct.Score <= indirect.Score {
		t.Fatalf("explicit request should score higher: %d vs %d", direct.Score, indirect.Score)
	}
}
