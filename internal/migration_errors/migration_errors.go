package migrationerrors

import (
	"errors"
	"fmt"
)

const (
	ExitNormal          int = 0
	ExitErrored         int = 1
	ExitSchemaConflict  int = 2
	ExitConnectivity    int = 3
	ExitInvalidSettings int = 4
)

const (
	DirectionUpgrade    = "upgrade"
	DirectionDowngrade  = "downgrade"
	ReasonColumnExists  = "column already exists"
	ReasonColumnMissing = "column does not exist"
	ReasonTableExists   = "table already exists"
	ReasonTableMissing  = "table does not exist"
)

var (
	ErrSchemaConflict = errors.New("schema conflict")
	ErrConnectivity   = errors.New("database unreachable")
)

// The schema is not in the state a migration step expects
type SchemaConflictError struct {
	Err    error
	Table  string
	Column string
	Reason string
}

func (e SchemaConflictError) Error() string {
	target := e.Table
	if e.Column != "" {
		target = fmt.Sprintf("%s.%s", e.Table, e.Column)
	}

	msg := fmt.Sprintf("schema conflict on %s: %s", target, e.Reason)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}

	return msg
}

func (e SchemaConflictError) Is(target error) bool {
	return target == ErrSchemaConflict
}

func (e SchemaConflictError) Unwrap() error {
	return e.Err
}

func SchemaConflict(table, column, reason string, err error) error {
	return SchemaConflictError{Table: table, Column: column, Reason: reason, Err: err}
}

// The target database could not be reached
type ConnectivityError struct {
	Err error
}

func (e ConnectivityError) Error() string {
	if e.Err == nil {
		return ErrConnectivity.Error()
	}

	return fmt.Sprintf("%s: %s", ErrConnectivity.Error(), e.Err.Error())
}

func (e ConnectivityError) Is(target error) bool {
	return target == ErrConnectivity
}

func (e ConnectivityError) Unwrap() error {
	return e.Err
}

func Connectivity(err error) error {
	var ce ConnectivityError
	if errors.As(err, &ce) {
		return err
	}

	return ConnectivityError{Err: err}
}

// Names the revision whose upgrade or downgrade failed
type RevisionError struct {
	Err       error
	Revision  string
	Direction string
}

func (e RevisionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s of revision %s failed", e.Direction, e.Revision)
	}

	return fmt.Sprintf("%s of revision %s failed: %s", e.Direction, e.Revision, e.Err.Error())
}

func (e RevisionError) Unwrap() error {
	return e.Err
}

// Carries an exit code along with an error so the app can exit correctly
type ExitError struct {
	Err  error
	Code int
}

func (e ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%d", e.Code)
	}

	return fmt.Sprintf("%d: %s", e.Code, e.Err.Error())
}

func (e ExitError) Unwrap() error {
	return e.Err
}

// Wrap an error with an exit code
func ExitErrorWrap(code int, err error) error {
	return ExitError{Code: code, Err: err}
}

// Exit code for an arbitrary error, honoring an explicit ExitError first
func ExitCode(err error) int {
	if err == nil {
		return ExitNormal
	}

	var ee ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}

	switch {
	case errors.Is(err, ErrSchemaConflict):
		return ExitSchemaConflict
	case errors.Is(err, ErrConnectivity):
		return ExitConnectivity
	default:
		return ExitErrored
	}
}
