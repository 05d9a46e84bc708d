// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package epoch reassembles a stream of decoded sample chunks into
// fixed-length, optionally overlapping windows.
package epoch

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/OpenPSG/trc"
)

// ErrInvalidWindowConfig is returned when the window duration and overlap cannot produce a sliding window.
var ErrInvalidWindowConfig = errors.New("invalid window configuration")

// Config describes the windows a Buffer emits.
type Config struct {
	// Channels selects and orders the rows of every window. The order matters:
	// ["A", "B"] and ["B", "A"] produce row-swapped windows. Empty means every
	// channel of the header in storage order.
	Channels []string
	// Duration of one window.
	Duration time.Duration
	// Overlap between two successive windows; zero gives back-to-back windows.
	Overlap time.Duration
}

// Window is one completed epoch. The caller owns Data.
type Window struct {
	Index    int         // Sequence number since the last reset
	Start    int64       // Sample index of the first column since the last reset
	Channels []string    // Channel name of each row
	Data     [][]float64 // Data[channel][sample]
}

// Buffer accumulates sample chunks and emits a window every time one fills.
// A Buffer belongs to a single stream and is not safe for concurrent use.
type Buffer struct {
	channels   []string
	windowLen  int
	overlapLen int

	buf    [][]float64 // nil until the first update
	cursor int         // Samples already filled in buf
	last   *Window
	count  int

	// Row mapping of the last chunk layout seen.
	layout []string
	rows   []int
}

// New creates a buffer for the stream described by hdr.
func New(hdr *trc.Header, cfg Config) (*Buffer, error) {
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration %s must be positive", ErrInvalidWindowConfig, cfg.Duration)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Duration {
		return nil, fmt.Errorf("%w: overlap %s must be in [0, %s)", ErrInvalidWindowConfig, cfg.Overlap, cfg.Duration)
	}

	windowLen := samplesIn(hdr.SamplingRate, cfg.Duration)
	overlapLen := samplesIn(hdr.SamplingRate, cfg.Overlap)
	if windowLen == 0 {
		return nil, fmt.Errorf("%w: %s holds no sample at %d Hz", ErrInvalidWindowConfig, cfg.Duration, hdr.SamplingRate)
	}
	if overlapLen >= windowLen {
		return nil, fmt.Errorf("%w: overlap of %d samples does not leave room in a %d sample window",
			ErrInvalidWindowConfig, overlapLen, windowLen)
	}

	idx, err := hdr.Pick(cfg.Channels)
	if err != nil {
		return nil, err
	}
	names := hdr.ChannelNames()
	channels := make([]string, len(idx))
	for i, j := range idx {
		channels[i] = names[j]
	}

	return &Buffer{
		channels:   channels,
		windowLen:  windowLen,
		overlapLen: overlapLen,
	}, nil
}

// samplesIn returns floor(rate * d).
func samplesIn(rate int, d time.Duration) int {
	return int(int64(rate) * int64(d) / int64(time.Second))
}

// Channels returns the row names of every window.
func (b *Buffer) Channels() []string {
	return b.channels
}

// WindowLength returns the number of samples in a window.
func (b *Buffer) WindowLength() int {
	return b.windowLen
}

// OverlapLength returns the number of samples shared by two successive windows.
func (b *Buffer) OverlapLength() int {
	return b.overlapLen
}

// Len returns the number of samples currently held towards the next window.
func (b *Buffer) Len() int {
	return b.cursor
}

// Latest returns the most recently completed window.
func (b *Buffer) Latest() (*Window, bool) {
	return b.last, b.last != nil
}

// Reset discards buffered samples and returns the buffer to its initial
// state. The next update starts a new stream at sample 0.
func (b *Buffer) Reset() {
	b.buf = nil
	b.cursor = 0
	b.last = nil
	b.count = 0
	b.layout = nil
	b.rows = nil
}

// Update appends a chunk and returns the windows it completed, in order.
// Most chunks complete zero or one window; a chunk longer than a slide can
// complete several.
func (b *Buffer) Update(chunk *trc.SampleChunk) ([]*Window, error) {
	rows, err := b.rowsFor(chunk.Channels)
	if err != nil {
		return nil, err
	}

	if b.buf == nil {
		b.buf = make([][]float64, len(b.channels))
		for r := range b.buf {
			b.buf[r] = make([]float64, b.windowLen)
		}
	}

	var windows []*Window
	n := chunk.Samples()
	for src := 0; src < n; {
		take := min(b.windowLen-b.cursor, n-src)
		for r, row := range rows {
			copy(b.buf[r][b.cursor:b.cursor+take], chunk.Data[row][src:src+take])
		}
		b.cursor += take
		src += take

		if b.cursor == b.windowLen {
			windows = append(windows, b.complete())
		}
	}
	return windows, nil
}

// complete snapshots the full buffer and seeds the next window with its tail.
func (b *Buffer) complete() *Window {
	w := &Window{
		Index:    b.count,
		Start:    int64(b.count) * int64(b.windowLen-b.overlapLen),
		Channels: b.channels,
		Data:     make([][]float64, len(b.buf)),
	}
	for r, row := range b.buf {
		w.Data[r] = append([]float64(nil), row...)
		copy(row[:b.overlapLen], row[b.windowLen-b.overlapLen:])
	}
	b.cursor = b.overlapLen
	b.count++
	b.last = w
	return w
}

// rowsFor maps the buffer's channels onto the rows of a chunk layout.
func (b *Buffer) rowsFor(layout []string) ([]int, error) {
	if b.rows != nil && slices.Equal(layout, b.layout) {
		return b.rows, nil
	}

	pos := make(map[string]int, len(layout))
	for i := len(layout) - 1; i >= 0; i-- {
		pos[layout[i]] = i
	}
	rows := make([]int, len(b.channels))
	for i, name := range b.channels {
		j, ok := pos[name]
		if !ok {
			return nil, &trc.UnknownChannelError{Name: name, Available: layout}
		}
		rows[i] = j
	}

	b.layout = append([]string(nil), layout...)
	b.rows = rows
	return rows, nil
}
