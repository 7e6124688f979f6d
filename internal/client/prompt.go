package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

var (
	nameAdjectives = []string{"Happy", "Cool", "Bright", "Calm", "Fast", "Rude", "Unlucky", "Lucky"}
	nameNouns      = []string{"Shark", "Tiger", "Wolf", "Hawk", "Bunny"}
)

// RandomName builds a display name such as "CalmHawk417".
func RandomName(r *rand.Rand) string {
	return nameAdjectives[r.IntN(len(nameAdjectives))] +
		nameNouns[r.IntN(len(nameNouns))] +
		strconv.Itoa(r.IntN(1000))
}

// Prompter asks the user for connection details before the client starts.
type Prompter struct {
	in   *Input
	out  *Console
	rand *rand.Rand
}

// NewPrompter asks questions on out and reads answers from in; r picks
// random names.
func NewPrompter(in *Input, out *Console, r *rand.Rand) *Prompter {
	return &Prompter{in: in, out: out, rand: r}
}

func (p *Prompter) ask(ctx context.Context, hint, question string) (string, error) {
	p.out.Hint(hint)
	p.out.Prompt(question)
	line, err := p.in.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Host asks for the server address, returning def on a blank answer.
func (p *Prompter) Host(ctx context.Context, def string) (string, error) {
	answer, err := p.ask(ctx, "for default server IP Address: "+def, "Enter server IP address: ")
	if err != nil || answer == "" {
		return def, err
	}
	return answer, nil
}

// Port asks for the server port. A blank answer gives def; anything that is
// not a number between 1 and 65535 is reported and also gives def.
func (p *Prompter) Port(ctx context.Context, def int) (int, error) {
	answer, err := p.ask(ctx, fmt.Sprintf("for default port: %d", def), "Enter server port: ")
	if err != nil || answer == "" {
		return def, err
	}

	port, err := strconv.Atoi(answer)
	if err != nil || port < 1 || port > 65535 {
		p.out.Warn(fmt.Sprintf("Invalid port number. Defaulting to port %d.", def))
		return def, nil
	}
	return port, nil
}

// Name asks for a display name; a blank answer picks a random one.
func (p *Prompter) Name(ctx context.Context) (string, error) {
	answer, err := p.ask(ctx, "for random username", "Enter your username: ")
	if err != nil {
		return "", err
	}
	if answer == "" {
		return RandomName(p.rand), nil
	}
	return answer, nil
}
