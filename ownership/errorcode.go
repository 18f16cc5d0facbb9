package ownership

import (
	"errors"
	"fmt"
)

const (
	ErrUnknown      = 1
	ErrUnauthorized = 2
	ErrLog          = 3
)

type ErrorCode struct {
	Code int
	Memo string
}

func (e *ErrorCode) GetCode() int {
	return e.Code
}

func (e *ErrorCode) Error() string {
	return fmt.Sprintf("%d - %s", e.Code, e.Memo)
}

// Is matches any ErrorCode with the same code, so errors.Is(err, ErrNotOwner)
// holds regardless of the memo.
func (e *ErrorCode) Is(target error) bool {
	t, ok := target.(*ErrorCode)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ErrNotOwner is the sentinel for ErrUnauthorized failures.
var ErrNotOwner = &ErrorCode{Code: ErrUnauthorized, Memo: "caller is not the owner"}

// IsUnauthorized reports whether err (or anything it wraps) is an ErrUnauthorized code.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNotOwner)
}
