package router

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"@bot", "hello", "there"}, Tokenize("  @Bot HELLO\tthere\n"))
	assert.Empty(t, Tokenize("   "))
}

func TestIsDirect(t *testing.T) {
	r := New("@Bot")

	tests := []struct {
		msg  string
		want bool
	}{
		{"bot hello", true},
		{"@bot hello", true},
		{"@BOT hello", true},
		{"BoT", true},
		{"@bot: restart", true},
		{"@bot, help", true},
		{"@bottle hello", false},
		{"@bot-ops hello", false},
		{"hello @bot", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.IsDirect(Tokenize(tt.msg)), "IsDirect(%q)", tt.msg)
	}
}

func TestIsDirectEmptyName(t *testing.T) {
	r := New("")
	assert.False(t, r.IsDirect([]string{"@"}))
	assert.False(t, r.IsDirect([]string{""}))
}

func TestRoute(t *testing.T) {
	r := New("bot")
	help := fmt.Sprintf(HelpReply, "bot")

	tests := []struct {
		name    string
		msg     string
		replies []string
		restart bool
	}{
		{"nothing", "good morning everyone", nil, false},
		{"hello", "well hello there", []string{HelloReply}, false},
		{"hello substring", "sayhello", nil, false},
		{"hello with punctuation", "hello!", nil, false},
		{"help", "help", []string{help}, false},
		{"help wins over hello", "hello help", []string{help}, false},
		{"direct", "@bot how are you", []string{DirectReply}, false},
		{"direct and hello", "@bot hello", []string{DirectReply, HelloReply}, false},
		{"direct and help", "@bot help", []string{DirectReply, help}, false},
		{"restart menu", "@bot restart", []string{RestartMenuReply}, false},
		{"restart yourself", "@bot restart yourself", []string{FarewellReply}, true},
		{"restart unknown", "@bot restart database", []string{fmt.Sprintf(UnknownRestartReply, "database")}, false},
		{"restart backend", "@bot restart backend now", []string{fmt.Sprintf(UnknownRestartReply, "backend")}, false},
		{"restart not direct", "please restart yourself", nil, false},
		{"restart with help", "@bot restart help", []string{fmt.Sprintf(UnknownRestartReply, "help"), help}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Route(Tokenize(tt.msg))
			assert.Equal(t, tt.replies, d.Replies)
			assert.Equal(t, tt.restart, d.Restart)
		})
	}
}

func TestRouteHelloWordBoundary(t *testing.T) {
	r := New("bot")
	for _, msg := range []string{"hello", "HeLLo world", "oh hello", "x y z hello"} {
		d := r.Route(Tokenize(msg))
		assert.Equal(t, []string{HelloReply}, d.Replies, msg)
	}
	for _, msg := range []string{"sayhello", "hellohello", "othello", "hello-world"} {
		assert.True(t, r.Route(Tokenize(msg)).Empty(), msg)
	}
}

func TestHelpListsCommands(t *testing.T) {
	d := New("bot").Route([]string{"help"})
	for _, cmd := range []string{"`hello`", "`help`", "`restart`"} {
		assert.True(t, strings.Contains(d.Replies[0], cmd), "help text should mention %s", cmd)
	}
}

func TestRestartMenuListsTargets(t *testing.T) {
	d := New("bot").Route(Tokenize("@bot restart"))
	assert.Contains(t, d.Replies[0], "myself")
	assert.Contains(t, d.Replies[0], "backend")
}
