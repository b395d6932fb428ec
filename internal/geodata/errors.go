package geodata

import "errors"

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrNoStreets        = errors.New("no streets found around location")
)
