package main

import (
	"errors"
	"testing"

	"codedox/internal/model"
)

func TestExitCodeContract(t *testing.T) {
	if exitOK != 0 {
		t.Errorf("exitOK = %d, want 0", exitOK)
	}
	if exitUsage != 1 {
		t.Errorf("exitUsage = %d, want 1", exitUsage)
	}
	if exitError != 2 {
		t.Errorf("exitError = %d, want 2", exitError)
	}
	if exitInterrupt != 130 {
		t.Errorf("exitInterrupt = %d, want 130", exitInterrupt)
	}
}

func TestRunUnknownCommandExitsUsage(t *testing.T) {
	if got := run([]string{"no-such-command"}); got != exitUsage {
		t.Errorf("unknown command exited %d, want %d", got, exitUsage)
	}
}

func TestRunNoArgsExitsUsage(t *testing.T) {
	if got := run(nil); got != exitUsage {
		t.Errorf("empty invocation exited %d, want %d", got, exitUsage)
	}
}

func TestExitForSeparatesValidationFromRuntime(t *testing.T) {
	if got := exitFor(model.E(model.KindValidation, "max_depth must be between 0 and 3")); got != exitUsage {
		t.Errorf("validation error exited %d, want %d", got, exitUsage)
	}
	if got := exitFor(model.E(model.KindStorage, "db unavailable")); got != exitError {
		t.Errorf("storage error exited %d, want %d", got, exitError)
	}
	if got := exitFor(errors.New("boom")); got != exitError {
		t.Errorf("untyped error exited %d, want %d", got, exitError)
	}
}
