package service

import (
	"fmt"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrPosterNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "poster")
}

type ErrPosterNotReady struct {
	error
}

func NewErrPosterNotReady(id string, status string) *ErrPosterNotReady {
	return &ErrPosterNotReady{fmt.Errorf("poster %s is not ready, job is %s", id, status)}
}

type ErrInvalidPosterRequest struct {
	error
}

func NewErrInvalidPosterRequest(format string, args ...any) *ErrInvalidPosterRequest {
	return &ErrInvalidPosterRequest{fmt.Errorf(format, args...)}
}

func NewErrThemeNotFound(theme string) *ErrInvalidPosterRequest {
	return NewErrInvalidPosterRequest("theme %q not found", theme)
}

type ErrServiceBusy struct {
	error
}

func NewErrServiceBusy(pending int) *ErrServiceBusy {
	return &ErrServiceBusy{fmt.Errorf("too many posters in progress (%d queued), try again later", pending)}
}
