package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/GoCodeAlone/foreman/provider"
)

func TestMockProvider_CyclesResponses(t *testing.T) {
	m := New("one", "two")

	var got []string
	for i := 0; i < 3; i++ {
		resp, err := m.Generate(context.Background(), provider.Request{Prompt: "p"})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		got = append(got, resp.Content)
	}
	want := []string{"one", "two", "one"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("response %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMockProvider_DefaultResponse(t *testing.T) {
	m := New()
	resp, err := m.Generate(context.Background(), provider.Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != defaultResponse {
		t.Errorf("Content = %q, want default", resp.Content)
	}
}

func TestMockProvider_RecordsPromptsAndFails(t *testing.T) {
	m := New("x")
	if _, err := m.Generate(context.Background(), provider.Request{Prompt: "first"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	boom := errors.New("provider down")
	m.Fail(boom)
	if _, err := m.Generate(context.Background(), provider.Request{Prompt: "second"}); !errors.Is(err, boom) {
		t.Errorf("Generate error = %v, want %v", err, boom)
	}

	prompts := m.Prompts()
	if len(prompts) != 2 || prompts[0] != "first" || prompts[1] != "second" {
		t.Errorf("Prompts = %v, want [first second]", prompts)
	}
}
