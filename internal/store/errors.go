package store

import "github.com/pkg/errors"

// Three error kinds leave this package: ErrNotFound, ErrInvalidData
// (a row that cannot be mapped onto the domain, typically an unknown
// enum string) and plain wrapped driver errors for everything
// transient.
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidData(err error) bool {
	return errors.Is(err, ErrInvalidData)
}
