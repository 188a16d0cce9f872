package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPositionNotFound    = errors.New("position not found")
	ErrInvalidLevels       = errors.New("stop/target on wrong side of entry")
	ErrEngineClosed        = errors.New("engine stopped")
)
