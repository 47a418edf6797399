package frequencia

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodePersistence     Code = "PERSISTENCE"
)

type DomainError struct {
	Code    Code
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func ErrInvalid(msg string) error      { return &DomainError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) error     { return &DomainError{Code: CodeNotFound, Message: msg} }
func ErrInvalidState(msg string) error { return &DomainError{Code: CodeInvalidState, Message: msg} }
func ErrUnauthorized(msg string) error { return &DomainError{Code: CodeUnauthorized, Message: msg} }
func ErrPersistence(msg string) error  { return &DomainError{Code: CodePersistence, Message: msg} }

// asPersistence keeps domain errors as-is and folds everything else
// (driver errors, timeouts) into the PERSISTENCE code so the caller can
// tell a storage fault from a rule violation.
func asPersistence(err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return ErrPersistence("storage failure: " + err.Error())
}

func ToHTTPStatus(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeInvalidState:
			return 409
		case CodeUnauthorized:
			return 401
		case CodePersistence:
			return 503
		}
	}
	return 500
}
