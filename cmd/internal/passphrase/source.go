package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a keystore passphrase once, from an environment variable or
// a terminal prompt, and caches the outcome.
type Source struct {
	envVar  string
	label   string
	confirm bool

	// prompt reads one line without echo. Tests replace it.
	prompt func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source reading envVar before falling back to a prompt.
// label names the keystore in prompts and errors.
func NewSource(envVar, label string) *Source {
	if strings.TrimSpace(label) == "" {
		label = "keystore"
	}
	return &Source{envVar: strings.TrimSpace(envVar), label: label, prompt: terminalPrompt}
}

// NewConfirmingSource is NewSource for keystores about to be created: an
// interactive passphrase has to be typed twice.
func NewConfirmingSource(envVar, label string) *Source {
	s := NewSource(envVar, label)
	s.confirm = true
	return s
}

// Get returns the passphrase. An environment value is used verbatim; blank
// passphrases are rejected either way.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	first, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		if errors.Is(err, errNoTerminal) && s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
		}
		if errors.Is(err, errNoTerminal) {
			return "", fmt.Errorf("%s passphrase required and no terminal available", s.label)
		}
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", errors.New(s.label + " passphrase cannot be empty")
	}
	if s.confirm {
		second, err := s.prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
		if err != nil {
			return "", err
		}
		if second != first {
			return "", errors.New(s.label + " passphrases do not match")
		}
	}
	return first, nil
}

var errNoTerminal = errors.New("no terminal")

func terminalPrompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	return readHidden(os.Stderr, label, func() ([]byte, error) { return term.ReadPassword(fd) })
}

func readHidden(w io.Writer, label string, read func() ([]byte, error)) (string, error) {
	fmt.Fprint(w, label)
	raw, err := read()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}
