package adsync

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingOrganizationalUnit indicates a person's target OU does not exist.
	ErrMissingOrganizationalUnit = errors.New("organizational unit does not exist")

	// ErrNoUsernameAvailable indicates every username candidate is taken.
	ErrNoUsernameAvailable = errors.New("no username available")

	// ErrInvalidParameters indicates the synchronization parameters failed validation.
	ErrInvalidParameters = errors.New("invalid synchronization parameters")
)

// SourceReadError reports a roster that could not be read. It is fatal to a run.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("read roster \"%s\": %v", e.Path, e.Err)
	}
	return fmt.Sprintf("read roster: %v", e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// DirectoryOperationError reports a failed directory query or mutation.
type DirectoryOperationError struct {
	Op     string
	Target string
	Err    error
}

func (e *DirectoryOperationError) Error() string {
	if len(e.Target) > 0 {
		return fmt.Sprintf("directory %s \"%s\": %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
}

func (e *DirectoryOperationError) Unwrap() error {
	return e.Err
}

func directoryError(op string, target string, err error) error {
	if err == nil {
		return nil
	}
	var de *DirectoryOperationError
	if errors.As(err, &de) {
		return err
	}
	return &DirectoryOperationError{Op: op, Target: target, Err: err}
}
