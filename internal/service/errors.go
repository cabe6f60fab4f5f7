package service

import "errors"

var (
	ErrSessionNotFound  = errors.New("booking session not found")
	ErrNotReady         = errors.New("booking session is not ready for this step")
	ErrSlotNotFound     = errors.New("slot not found in loaded availability")
	ErrMissingSelection = errors.New("selection is incomplete")
	ErrInvalidRequest   = errors.New("invalid request")
)
