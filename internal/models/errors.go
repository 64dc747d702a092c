package models

import "errors"

var (
	// ErrInvalidParameter is returned for caller-supplied parameters outside
	// their documented range. It is never recovered internally.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrEmptyDataset is returned when an operation needs a latest sample.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrMalformedInput is returned for non-finite values, ragged matrices or
	// unordered timestamps.
	ErrMalformedInput = errors.New("malformed input")
)
