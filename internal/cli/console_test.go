package cli

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avarcorg/chatops-bot/internal/router"
)

func TestRehearsalSend(t *testing.T) {
	r := NewRehearsal("@Ops")
	assert.Equal(t, "ops", r.Name())

	tests := []struct {
		msg     string
		replies []string
		restart bool
	}{
		{"@ops hello", []string{router.DirectReply, router.HelloReply}, false},
		{"hello everyone", []string{router.HelloReply}, false},
		{"nothing to see", nil, false},
		{"@ops restart yourself", []string{router.FarewellReply}, true},
		{"@ops restart", []string{router.RestartMenuReply}, false},
	}
	for _, tt := range tests {
		replies, restart, err := r.Send(context.Background(), tt.msg)
		require.NoError(t, err, tt.msg)
		assert.Equal(t, tt.replies, replies, tt.msg)
		assert.Equal(t, tt.restart, restart, tt.msg)
	}
}

func TestHistoryFor(t *testing.T) {
	entries := historyFor(repliesMsg{replies: []string{"a"}, restart: true})
	require.Len(t, entries, 2)
	assert.Equal(t, "bot", entries[0].role)
	assert.Equal(t, "note", entries[1].role)

	entries = historyFor(repliesMsg{})
	require.Len(t, entries, 1)
	assert.Equal(t, "no reply", entries[0].content)

	entries = historyFor(repliesMsg{replies: []string{"ignored"}, err: assert.AnError})
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0].role)
}

func TestConsoleModelRoundTrip(t *testing.T) {
	var m tea.Model = newConsoleModel(context.Background(), NewRehearsal("ops"))
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	cm := m.(consoleModel)
	cm.input.SetValue("@ops help")
	m, cmd := cm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Empty(t, m.(consoleModel).input.Value())

	m, _ = m.Update(cmd())
	history := m.(consoleModel).history
	require.Len(t, history, 3)
	assert.Equal(t, consoleEntry{role: "user", content: "@ops help"}, history[0])
	assert.Equal(t, router.DirectReply, history[1].content)
	assert.Contains(t, history[2].content, "`help`")
	assert.Contains(t, m.View(), "console")
}

func TestConsoleExitCommands(t *testing.T) {
	for _, s := range []string{"exit", "QUIT", "/exit", ":q"} {
		assert.True(t, isExitCmd(s), s)
	}
	assert.False(t, isExitCmd("@ops exit"))
}
