package client

import (
	"bufio"
	"context"
	"io"
)

// Input reads the user's lines in the background. Chat messages, the
// reconnect question and the startup prompts all consume the same stream.
type Input struct {
	lines chan string
}

// NewInput starts reading r. The channel returned by Lines is closed when r is
// exhausted.
func NewInput(r io.Reader) *Input {
	in := &Input{lines: make(chan string)}
	go func() {
		defer close(in.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			in.lines <- scanner.Text()
		}
	}()
	return in
}

func (in *Input) Lines() <-chan string { return in.lines }

// ReadLine waits for the next line. It returns io.EOF once input is exhausted.
func (in *Input) ReadLine(ctx context.Context) (string, error) {
	return readLine(ctx, in.lines)
}

func readLine(ctx context.Context, lines <-chan string) (string, error) {
	select {
	case line, ok := <-lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
