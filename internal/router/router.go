// Package router decides how the bot answers a message. It is pure: no I/O,
// no clock, no logging.
package router

import (
	"fmt"
	"strings"
)

// mentionSuffixes may trail a mention. "-" and "_" are excluded since they
// are valid in usernames.
const mentionSuffixes = ":,.!?;"

// Canned replies.
const (
	DirectReply = "Are you talking to me? :rocket:"
	HelloReply  = "... again, General Kenobi :crossed_swords:"
	HelpReply   = "Here are the commands I respond to:\n" +
		"- `hello`: say hello back\n" +
		"- `help`: show this message\n" +
		"- `restart`: restart something (mention me first, e.g. `@%s restart yourself`)"

	RestartMenuReply = "What should I restart?\n" +
		"- `myself`: say `restart yourself`\n" +
		"- `backend`"
	FarewellReply       = "Restarting myself now. Be right back! :wave:"
	UnknownRestartReply = "Sorry, I don't know how to restart `%s`. :shrug:"
)

// Decision is the router's answer to one message.
type Decision struct {
	// Replies are posted in order, one post each.
	Replies []string
	// Restart asks the process to restart once the replies are sent.
	Restart bool
}

// Empty reports whether the message needs no reaction.
func (d Decision) Empty() bool {
	return len(d.Replies) == 0 && !d.Restart
}

// Router maps tokenized messages to decisions.
type Router struct {
	name string // lowercase mention name without "@"
}

// New creates a router for the given mention name ("bot" or "@bot").
func New(mentionName string) *Router {
	name := strings.ToLower(strings.TrimSpace(mentionName))
	name = strings.TrimPrefix(name, "@")
	return &Router{name: name}
}

// Name returns the normalized mention name.
func (r *Router) Name() string { return r.name }

// Tokenize lowercases a message body and splits it on whitespace.
func Tokenize(body string) []string {
	return strings.Fields(strings.ToLower(body))
}

// IsDirect reports whether the first token addresses the bot: the bare
// name, "@name", or "@name" followed only by sentence punctuation
// ("@bot:", "@bot,").
func (r *Router) IsDirect(tokens []string) bool {
	if len(tokens) == 0 || r.name == "" {
		return false
	}
	first := strings.ToLower(tokens[0])
	if first == r.name {
		return true
	}
	mention := "@" + r.name
	if !strings.HasPrefix(first, mention) {
		return false
	}
	return strings.Trim(first[len(mention):], mentionSuffixes) == ""
}

// Route decides the replies for a message. At most two replies are
// produced: first the direct-address or restart reply, then the help or
// hello reply. Help wins over hello.
func (r *Router) Route(tokens []string) Decision {
	var d Decision

	if r.IsDirect(tokens) {
		if i := indexOf(tokens, "restart"); i >= 0 {
			reply, restart := r.restart(tokens, i)
			d.Replies = append(d.Replies, reply)
			d.Restart = restart
		} else {
			d.Replies = append(d.Replies, DirectReply)
		}
	}

	switch {
	case indexOf(tokens, "help") >= 0:
		d.Replies = append(d.Replies, fmt.Sprintf(HelpReply, r.name))
	case indexOf(tokens, "hello") >= 0:
		d.Replies = append(d.Replies, HelloReply)
	}

	return d
}

func (r *Router) restart(tokens []string, i int) (string, bool) {
	if i == len(tokens)-1 {
		return RestartMenuReply, false
	}
	target := tokens[i+1]
	if target == "yourself" {
		return FarewellReply, true
	}
	return fmt.Sprintf(UnknownRestartReply, target), false
}

func indexOf(tokens []string, word string) int {
	for i, t := range tokens {
		if t == word {
			return i
		}
	}
	return -1
}
