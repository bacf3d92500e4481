// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package squirrelerr defines the error taxonomy shared by every component of
// the asset store: a fixed set of Kinds, each carrying a numeric code a CLI
// can use as its process exit status.
package squirrelerr

import "fmt"

// Kind identifies which row of the error taxonomy an Error belongs to.
type Kind int

// Error kinds, one per condition the store can fail on.
const (
	KindUnknown Kind = iota
	KindSourceMissing
	KindDestinationUnusable
	KindVersionOverflow
	KindReservationExhausted
	KindPinOnVictim
	KindPinOverwriteNonLink
	KindNameDoubledUnderscore
	KindNameLeadingUnderscore
	KindNameTrailingUnderscore
	KindNameMissingVariant
	KindNameMissingTokens
	KindNameIncompleteTokens
	KindNameMissingDescription
	KindPoolCorruption
	KindThumbnailNameInvalid
	KindThumbnailRangeNonContiguous
	KindIO
)

// codes maps each Kind to the numeric code a CLI reports as its exit status.
var codes = map[Kind]int{
	KindUnknown:                     1,
	KindSourceMissing:               10,
	KindDestinationUnusable:         11,
	KindVersionOverflow:             20,
	KindReservationExhausted:        21,
	KindPinOnVictim:                 30,
	KindPinOverwriteNonLink:         31,
	KindNameDoubledUnderscore:       40,
	KindNameLeadingUnderscore:       41,
	KindNameTrailingUnderscore:      42,
	KindNameMissingVariant:          43,
	KindNameMissingTokens:           44,
	KindNameIncompleteTokens:        45,
	KindNameMissingDescription:      46,
	KindPoolCorruption:              50,
	KindThumbnailNameInvalid:        60,
	KindThumbnailRangeNonContiguous: 61,
	KindIO:                          70,
}

// Error is the single error type returned by every package in this module.
// It carries a Kind for programmatic dispatch, a numeric Code a CLI can use
// directly as its exit status, and wraps an optional underlying error so
// callers can still errors.Is/errors.As against os/fs sentinel errors.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error for kind, formatting Message from format/args.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    codes[kind],
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap builds an Error for kind around an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    codes[kind],
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
