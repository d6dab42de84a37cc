package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for input.
type Prompter struct {
	In  io.Reader
	Out io.Writer
	// FD is the terminal file descriptor of In, or -1.
	FD int

	scanner *bufio.Scanner
}

// Line prints label and reads one line.
func (p *Prompter) Line(label string) string {
	fmt.Fprint(p.Out, label)
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	p.scanner.Scan()
	return strings.TrimSpace(p.scanner.Text())
}

// Password prints label and reads a line without echo when In is a
// terminal.
func (p *Prompter) Password(label string) (string, error) {
	if p.FD < 0 || !term.IsTerminal(p.FD) {
		return p.Line(label), nil
	}
	fmt.Fprint(p.Out, label)
	b, err := term.ReadPassword(p.FD)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
