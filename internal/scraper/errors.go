// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the origin site definitively has no record for
// the requested id or query. It is a terminal outcome, never retried and
// never handed to a fallback source.
var ErrNotFound = errors.New("not found")

// TransientError represents a network failure or an HTTP error status from
// the origin site. Callers may retry or fall back to another source.
type TransientError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *TransientError) Is(target error) bool {
	_, ok := target.(*TransientError)
	return ok
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether the origin throttled or blocked the request.
func (e *TransientError) IsRateLimited() bool {
	return e.StatusCode == 429 || e.StatusCode == 403
}

// ParseError represents a page that was fetched but did not match the
// expected markup, typically after an origin site layout change.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)
	return ok
}
