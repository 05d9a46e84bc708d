// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package trc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedHeader is returned when the header does not follow the expected layout.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrUnsupportedSampleWidth is returned for a bytes-per-sample value other than 1, 2 or 4.
	ErrUnsupportedSampleWidth = errors.New("unsupported sample width")
	// ErrUnknownChannel is returned when a requested channel is not in the header.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrUnconvertibleUnit is returned when volts are requested for a non-voltage unit.
	ErrUnconvertibleUnit = errors.New("unit cannot be converted to volts")
	// ErrOutOfRange is returned when a sample range falls outside the recording.
	ErrOutOfRange = errors.New("sample range out of bounds")
)

// UnknownChannelError reports a requested channel that is not in the header.
type UnknownChannelError struct {
	Name      string
	Available []string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("%s %q: available channels are [%s]", ErrUnknownChannel, e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownChannelError) Unwrap() error {
	return ErrUnknownChannel
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHeader, fmt.Sprintf(format, args...))
}
