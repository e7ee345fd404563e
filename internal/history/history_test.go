package history

import (
	"fmt"
	"reflect"
	"testing"

	"chatrelay/internal/models"
	"chatrelay/internal/prompt"
)

func makeHistory(n int) models.History {
	h := make(models.History, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		h = append(h, models.Turn{Role: role, Content: fmt.Sprintf("turn-%d", i)})
	}
	return h
}

func dialogFormatter(t *testing.T) prompt.Formatter {
	t.Helper()
	f, err := prompt.New(prompt.FamilyDialog, prompt.Options{})
	if err != nil {
		t.Fatalf("formatter: %v", err)
	}
	return f
}

func TestAppendAndTruncateBound(t *testing.T) {
	for size := 0; size < 12; size++ {
		for retention := -1; retention < 10; retention++ {
			got := AppendAndTruncate(makeHistory(size), "u", "a", retention)
			limit := retention
			if limit < 0 {
				limit = 0
			}
			if len(got) > limit {
				t.Fatalf("size=%d retention=%d: got %d turns", size, retention, len(got))
			}
		}
	}
}

func TestAppendAndTruncateKeepsSuffix(t *testing.T) {
	h := makeHistory(7)
	got := AppendAndTruncate(h, "u", "a", 4)
	want := models.History{
		h[5], h[6],
		{Role: models.RoleUser, Content: "u"},
		{Role: models.RoleAssistant, Content: "a"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected suffix:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestAppendAndTruncateDegenerateRetention(t *testing.T) {
	got := AppendAndTruncate(makeHistory(2), "u", "a", 1)
	if len(got) != 1 || got[0].Role != models.RoleAssistant || got[0].Content != "a" {
		t.Fatalf("expected only the assistant reply, got %+v", got)
	}
	if got := AppendAndTruncate(nil, "u", "a", 0); len(got) != 0 {
		t.Fatalf("expected empty history, got %+v", got)
	}
}

func TestAppendAndTruncateDoesNotMutateInput(t *testing.T) {
	h := make(models.History, 3, 10)
	copy(h, makeHistory(3))
	snapshot := h.Clone()
	out := AppendAndTruncate(h, "u", "a", 6)
	out[0].Content = "changed"
	if !reflect.DeepEqual(h, snapshot) {
		t.Fatalf("input history mutated: %+v", h)
	}
	if h[:cap(h)][3].Content != "" {
		t.Fatalf("spare capacity of input history was written")
	}
}

func TestAtCapacityDropsOldest(t *testing.T) {
	h := makeHistory(6)
	got := AppendAndTruncate(h, "new question", "new answer", 6)
	if len(got) != 6 {
		t.Fatalf("expected 6 turns, got %d", len(got))
	}
	if got[0] != h[2] {
		t.Fatalf("expected oldest pair dropped, first turn is %+v", got[0])
	}
	if got[5].Content != "new answer" {
		t.Fatalf("expected latest reply last, got %+v", got[5])
	}
}

func TestFirstExchange(t *testing.T) {
	f := dialogFormatter(t)
	ctx := BuildContext(nil, "Hello", 4, f)
	if ctx.Text != "User: Hello\nAssistant:" {
		t.Fatalf("unexpected context %q", ctx.Text)
	}
	got := AppendAndTruncate(nil, "Hello", "Hi there", 6)
	want := models.History{
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Hi there"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestBuildContextWindow(t *testing.T) {
	f := dialogFormatter(t)
	h := makeHistory(6)
	ctx := BuildContext(h, "next", 3, f)
	want := "Assistant: turn-3\nUser: turn-4\nAssistant: turn-5\nUser: next\nAssistant:"
	if ctx.Text != want {
		t.Fatalf("unexpected context:\nwant %q\ngot  %q", want, ctx.Text)
	}
	if len(ctx.Turns) != 4 || ctx.Turns[3].Content != "next" || ctx.Turns[3].Role != models.RoleUser {
		t.Fatalf("unexpected turns %+v", ctx.Turns)
	}
}

func TestBuildContextIsPure(t *testing.T) {
	f := dialogFormatter(t)
	h := makeHistory(5)
	snapshot := h.Clone()
	first := BuildContext(h, "q", 4, f)
	second := BuildContext(h, "q", 4, f)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("BuildContext not idempotent")
	}
	first.Turns[0].Content = "changed"
	if !reflect.DeepEqual(h, snapshot) {
		t.Fatalf("input history mutated")
	}
}

func TestWindowLargerThanHistory(t *testing.T) {
	h := makeHistory(2)
	if got := Window(h, 8); !reflect.DeepEqual(got, h) {
		t.Fatalf("expected whole history, got %+v", got)
	}
	if got := Window(h, 0); len(got) != 0 {
		t.Fatalf("expected empty window, got %+v", got)
	}
}
