package replay

import (
	"path/filepath"
	"testing"
)

func sampleContext() Context {
	return Context{
		Transcript: []Message{
			{Role: "user", Content: "Do you have rooms for tonight?"},
			{Role: "assistant", Content: "We have 12 room types, let me list them all..."},
			{Role: "user", Content: "Just pick one for me."},
			{Role: "assistant", Content: "Here are all 12 options again:"},
		},
		FailureTurnIndex: 3,
		CannedResponses: map[string]string{
			"room_lookup": `{"available":["Deluxe King"]}`,
		},
	}
}

func TestTruncated(t *testing.T) {
	c := sampleContext()
	trunc := c.Truncated()
	if len(trunc) != 3 {
		t.Fatalf("expected 3 turns before failure, got %d", len(trunc))
	}
	if trunc[len(trunc)-1].Role != "user" {
		t.Fatalf("expected replay to resume from a user turn, got %s", trunc[len(trunc)-1].Role)
	}
}

func TestFailedResponse(t *testing.T) {
	c := sampleContext()
	if got := c.FailedResponse(); got != "Here are all 12 options again:" {
		t.Fatalf("unexpected failed response: %q", got)
	}
}

func TestLastUserMessage(t *testing.T) {
	c := sampleContext()
	if got := c.LastUserMessage(); got != "Just pick one for me." {
		t.Fatalf("unexpected last user message: %q", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Context)
		wantErr bool
	}{
		{"valid", func(c *Context) {}, false},
		{"empty transcript", func(c *Context) { c.Transcript = nil }, true},
		{"index out of range", func(c *Context) { c.FailureTurnIndex = 10 }, true},
		{"negative index", func(c *Context) { c.FailureTurnIndex = -1 }, true},
		{"failing turn not assistant", func(c *Context) { c.FailureTurnIndex = 2 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := sampleContext()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFixtureRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	want := sampleContext()

	if err := SaveFixture(path, want); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(got.Transcript) != len(want.Transcript) || got.FailureTurnIndex != want.FailureTurnIndex {
		t.Fatal("fixture did not round-trip")
	}
	if got.CannedResponses["room_lookup"] != want.CannedResponses["room_lookup"] {
		t.Fatal("canned responses did not round-trip")
	}
}

func TestLoadFixtureMissing(t *testing.T) {
	_, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

func TestLoadFixtureInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := SaveFixture(path, Context{Transcript: []Message{{Role: "user", Content: "hi"}}, FailureTurnIndex: 0}); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	// Failing turn is a user turn: Validate rejects on load.
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected validation error")
	}
}
