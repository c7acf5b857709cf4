package service

import "errors"

// Business and upstream errors returned by the services.  Handlers map them
// to HTTP statuses with errors.Is.
var (
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyEntered      = errors.New("participant already entered")
	ErrUnknownCompetition  = errors.New("unknown competition")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrMissingMetadata     = errors.New("event metadata lacks competition or user id")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
