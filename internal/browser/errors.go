package browser

import (
	"errors"
	"fmt"

	"github.com/showscout/scout-cli/internal/model"
)

// Error is the driver's tagged failure. Every way a scrape can go wrong
// maps onto one of the model error kinds so callers can switch on the
// category instead of matching strings.
type Error struct {
	Kind model.ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("browser: %s: %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("browser: %s: %s", e.Kind, e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind model.ErrorKind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// Kind extracts the error kind from a driver failure, ErrNone for nil or
// foreign errors.
func Kind(err error) model.ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return model.ErrNone
}
