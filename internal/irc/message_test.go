package irc

import (
	"strings"
	"testing"

	"github.com/kwach/chatwire/internal/queue"
)

func TestParseLine_Privmsg(t *testing.T) {
	line := "@badge-info=;color=#FF0000;display-name=Alice :alice!alice@alice.tmi.twitch.tv PRIVMSG #somechannel :hello there"

	msg, err := parseLine(line)
	if err != nil {
		t.Fatalf("parseLine failed: %v", err)
	}

	if msg.Command != "PRIVMSG" {
		t.Errorf("Command = %q, want PRIVMSG", msg.Command)
	}
	if msg.Nick() != "alice" {
		t.Errorf("Nick() = %q, want alice", msg.Nick())
	}
	if len(msg.Params) != 2 || msg.Params[0] != "#somechannel" {
		t.Errorf("Params = %v, want [#somechannel, hello there]", msg.Params)
	}
	if msg.Trailing() != "hello there" {
		t.Errorf("Trailing() = %q, want %q", msg.Trailing(), "hello there")
	}
	if msg.Tags["display-name"] != "Alice" {
		t.Errorf("display-name tag = %q, want Alice", msg.Tags["display-name"])
	}
	if msg.Tags["badge-info"] != "" {
		t.Errorf("badge-info tag = %q, want empty", msg.Tags["badge-info"])
	}
}

func TestParseLine_Ping(t *testing.T) {
	msg, err := parseLine("PING :tmi.twitch.tv")
	if err != nil {
		t.Fatalf("parseLine failed: %v", err)
	}
	if msg.Command != "PING" {
		t.Errorf("Command = %q, want PING", msg.Command)
	}
	if msg.Trailing() != "tmi.twitch.tv" {
		t.Errorf("Trailing() = %q, want tmi.twitch.tv", msg.Trailing())
	}
}

func TestParseLine_Numeric(t *testing.T) {
	msg, err := parseLine(":tmi.twitch.tv 001 botty :Welcome, GLHF!")
	if err != nil {
		t.Fatalf("parseLine failed: %v", err)
	}
	if msg.Command != "001" {
		t.Errorf("Command = %q, want 001", msg.Command)
	}
	if msg.Nick() != "" {
		t.Errorf("Nick() = %q, want empty for server prefix", msg.Nick())
	}
	if msg.Params[0] != "botty" {
		t.Errorf("Params[0] = %q, want botty", msg.Params[0])
	}
}

func TestParseLine_TagEscapes(t *testing.T) {
	msg, err := parseLine(`@system-msg=10\sraiders\sfrom\sSomewhere;note=semi\:colon :tmi.twitch.tv USERNOTICE #somechannel`)
	if err != nil {
		t.Fatalf("parseLine failed: %v", err)
	}
	if got := msg.Tags["system-msg"]; got != "10 raiders from Somewhere" {
		t.Errorf("system-msg = %q", got)
	}
	if got := msg.Tags["note"]; got != "semi;colon" {
		t.Errorf("note = %q, want semi;colon", got)
	}
}

func TestParseLine_Malformed(t *testing.T) {
	for _, line := range []string{"", "   ", ":prefixonly", "@tagsonly"} {
		if _, err := parseLine(line); err == nil {
			t.Errorf("parseLine(%q) expected an error", line)
		}
	}
}

func TestPassLine(t *testing.T) {
	if got := passLine("abc123"); got != "PASS oauth:abc123" {
		t.Errorf("passLine = %q", got)
	}
	if got := passLine("oauth:abc123"); got != "PASS oauth:abc123" {
		t.Errorf("passLine with prefix = %q", got)
	}
}

func TestPrivmsgLine(t *testing.T) {
	line := privmsgLine(queue.Item{Channel: "somechannel", Text: "hi all", Nonce: "n-1"})
	if line != "@client-nonce=n-1 PRIVMSG #somechannel :hi all" {
		t.Errorf("privmsgLine = %q", line)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 500); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}

	long := strings.Repeat("a", 600)
	if got := truncate(long, 500); len(got) != 500 {
		t.Errorf("len(truncate(long)) = %d, want 500", len(got))
	}

	// The cut must never split a multibyte sequence.
	multi := strings.Repeat("é", 300) // 600 bytes
	got := truncate(multi, 499)
	if len(got) != 498 {
		t.Errorf("len = %d, want 498 (backed off to a rune boundary)", len(got))
	}
	for _, r := range got {
		if r != 'é' {
			t.Fatalf("truncation corrupted a rune: %q", r)
		}
	}
}
