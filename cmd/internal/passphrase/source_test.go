package passphrase

import (
	"errors"
	"strings"
	"testing"
)

func TestSourceReadsEnvironmentOnce(t *testing.T) {
	t.Setenv("VLEDGER_TEST_PASS", "s3cret")
	src := NewSource("VLEDGER_TEST_PASS", "")
	got, err := src.Get()
	if err != nil || got != "s3cret" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}

	t.Setenv("VLEDGER_TEST_PASS", "changed")
	if again, _ := src.Get(); again != "s3cret" {
		t.Fatalf("expected cached passphrase, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("VLEDGER_TEST_PASS", "   ")
	_, err := NewSource("VLEDGER_TEST_PASS", "admin keystore").Get()
	if err == nil || !strings.Contains(err.Error(), "VLEDGER_TEST_PASS") {
		t.Fatalf("expected empty passphrase error, got %v", err)
	}
}

func scripted(answers ...string) func(string) (string, error) {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", errors.New("unexpected prompt")
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
}

func TestConfirmingSourcePrompts(t *testing.T) {
	src := NewConfirmingSource("", "signer keystore")
	src.prompt = scripted("hunter2", "hunter2")
	if got, err := src.Get(); err != nil || got != "hunter2" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}

	mismatch := NewConfirmingSource("", "signer keystore")
	mismatch.prompt = scripted("hunter2", "hunter3")
	if _, err := mismatch.Get(); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("VLEDGER_UNSET_PASS", "admin keystore")
	src.prompt = func(string) (string, error) { return "", errNoTerminal }
	_, err := src.Get()
	if err == nil || !strings.Contains(err.Error(), "set VLEDGER_UNSET_PASS") {
		t.Fatalf("expected env hint, got %v", err)
	}
}
