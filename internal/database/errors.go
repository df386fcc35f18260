package database

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUniqueViolation tags constraint errors caused by duplicate values,
// such as an endpoint slug collision.
var ErrUniqueViolation = errors.New("unique constraint violated")

// ConstraintError wraps a driver unique-constraint failure with the table
// and column parsed out of the driver message.
type ConstraintError struct {
	Table   string
	Column  string
	Message string
	Cause   error
}

func (e *ConstraintError) Error() string {
	return e.Message
}

func (e *ConstraintError) Unwrap() error {
	return e.Cause
}

var uniquePattern = regexp.MustCompile(`UNIQUE constraint failed: ([^\s]+)`)

// ClassifyError converts unique-constraint failures from the sqlite driver
// into a ConstraintError. Any other error passes through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	matches := uniquePattern.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	ce := &ConstraintError{
		Cause:   ErrUniqueViolation,
		Message: "A record with this value already exists",
	}
	if parts := strings.Split(matches[1], "."); len(parts) == 2 {
		ce.Table = parts[0]
		ce.Column = parts[1]
		ce.Message = "A record with this '" + parts[1] + "' already exists"
	}
	return ce
}

// IsUniqueError reports whether err is a classified unique-constraint
// violation.
func IsUniqueError(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}
