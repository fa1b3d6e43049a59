// Package dispatch turns raw input lines into session commands.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/redischat/internal/chat"
)

// Dispatcher parses the command grammar and drives a session. Bare text is
// broadcast to the last channel used, starting from the configured default.
type Dispatcher struct {
	session     *chat.Session
	log         zerolog.Logger
	lastChannel string
}

// New builds a dispatcher. defaultChannel receives bare-text broadcasts
// until a /join or /chat retargets it.
func New(session *chat.Session, logger *zerolog.Logger, defaultChannel string) *Dispatcher {
	if defaultChannel == "" {
		defaultChannel = chat.BroadcastChannel
	}
	return &Dispatcher{
		session:     session,
		log:         logger.With().Str("component", "dispatch").Logger(),
		lastChannel: defaultChannel,
	}
}

// Dispatch executes one input line. The returned reply, when non-empty, is
// shown to the user; errors are typed domain errors with displayable text.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}

	if !strings.HasPrefix(line, "/") {
		if err := d.session.SendMessage(ctx, d.lastChannel, line); err != nil {
			return "", err
		}
		return "", nil
	}

	command, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "me":
		return d.me(ctx, rest)
	case "join":
		return d.join(ctx, rest)
	case "leave":
		return d.leave(ctx, rest)
	case "whois":
		return d.whois(ctx, rest)
	case "tell":
		return d.tell(ctx, rest)
	case "chat":
		return d.chat(ctx, rest)
	case "delete":
		if err := d.session.Delete(ctx); err != nil {
			return "", err
		}
		return "you have left the server", nil
	default:
		return "", fmt.Errorf("unknown command /%s", command)
	}
}

func (d *Dispatcher) me(ctx context.Context, rest string) (string, error) {
	args := strings.Fields(rest)
	if len(args) != 4 {
		return "", fmt.Errorf("usage: /me <name> <age> <sex> <location>")
	}
	age, err := strconv.Atoi(args[1])
	if err != nil {
		return "", fmt.Errorf("age must be a number, got %q", args[1])
	}
	if err := d.session.Identify(ctx, args[0], age, args[2], args[3]); err != nil {
		return "", err
	}
	return "you are now known as " + args[0], nil
}

func (d *Dispatcher) join(ctx context.Context, rest string) (string, error) {
	if rest == "" || len(strings.Fields(rest)) != 1 {
		return "", fmt.Errorf("usage: /join <channel>")
	}
	if err := d.session.Join(ctx, rest); err != nil {
		return "", err
	}
	d.lastChannel = rest
	return "joined channel " + rest, nil
}

func (d *Dispatcher) leave(ctx context.Context, rest string) (string, error) {
	if rest == "" || len(strings.Fields(rest)) != 1 {
		return "", fmt.Errorf("usage: /leave <channel>")
	}
	if err := d.session.Leave(ctx, rest); err != nil {
		return "", err
	}
	if d.lastChannel == rest {
		d.lastChannel = chat.BroadcastChannel
	}
	return "left channel " + rest, nil
}

func (d *Dispatcher) whois(ctx context.Context, rest string) (string, error) {
	if rest == "" || len(strings.Fields(rest)) != 1 {
		return "", fmt.Errorf("usage: /whois <username>")
	}
	profile, err := d.session.Whois(ctx, rest)
	if err != nil {
		return "", err
	}
	if len(profile) == 0 {
		return "no such user: " + rest, nil
	}
	return formatProfile(profile), nil
}

func (d *Dispatcher) tell(ctx context.Context, rest string) (string, error) {
	user, message, ok := strings.Cut(rest, " ")
	message = strings.TrimSpace(message)
	if !ok || user == "" || message == "" {
		return "", fmt.Errorf("usage: /tell <username> <message>")
	}
	if err := d.session.Tell(ctx, user, message); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) chat(ctx context.Context, rest string) (string, error) {
	channel, message, ok := strings.Cut(rest, " ")
	message = strings.TrimSpace(message)
	if !ok || channel == "" || message == "" {
		return "", fmt.Errorf("usage: /chat <channel> <message>")
	}
	if err := d.session.SendMessage(ctx, channel, message); err != nil {
		return "", err
	}
	d.lastChannel = channel
	return "", nil
}

// LastChannel returns the current bare-text broadcast target.
func (d *Dispatcher) LastChannel() string {
	return d.lastChannel
}

func formatProfile(profile map[string]string) string {
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+profile[k])
	}
	return strings.Join(parts, " ")
}
