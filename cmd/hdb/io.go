package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/n2code/hdb"
	"golang.org/x/term"
)

// TerminalPrompter asks the operator on the terminal. Ctrl+C aborts any question.
type TerminalPrompter struct {
	in          *bufio.Reader
	out         io.Writer
	fd          int  //of the input, for hidden passphrase entry
	interactive bool //input is a terminal
}

func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:          bufio.NewReader(in),
		out:         out,
		fd:          int(in.Fd()),
		interactive: term.IsTerminal(int(in.Fd())),
	}
}

func (p *TerminalPrompter) ChooseVolume() (string, error) {
	fmt.Fprint(p.out, "Which volume is inserted? Enter its ID or 0 for a new one: ")
	answer, err := p.await(p.readLine)
	return strings.TrimSpace(answer), err
}

func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s (y/N): ", question)
	answer, err := p.await(p.readLine)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Passphrase asks twice and repeats until both answers match.
func (p *TerminalPrompter) Passphrase() (string, error) {
	for {
		fmt.Fprint(p.out, "Passphrase: ")
		first, err := p.await(p.readSecret)
		if err != nil {
			return "", err
		}
		fmt.Fprint(p.out, "Repeat passphrase: ")
		second, err := p.await(p.readSecret)
		if err != nil {
			return "", err
		}
		if first == "" {
			fmt.Fprintln(p.out, "Empty passphrases are not allowed.")
			continue
		}
		if first == second {
			return first, nil
		}
		fmt.Fprintln(p.out, "Passphrases do not match, try again.")
	}
}

func (p *TerminalPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *TerminalPrompter) readSecret() (string, error) {
	if !p.interactive {
		return p.readLine()
	}
	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out) //echo of the newline is suppressed as well
	return string(secret), err
}

// await runs read in the background so that an interrupt aborts the question immediately.
func (p *TerminalPrompter) await(read func() (string, error)) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	if p.interactive {
		if state, err := term.GetState(p.fd); err == nil {
			defer term.Restore(p.fd, state)
		}
	}

	go func() {
		text, err := read()
		done <- result{text, err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-interrupt:
		fmt.Fprint(p.out, "<CANCELLED>\n")
		return "", hdb.ErrAborted
	}
}
