// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package stream

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/OpenPSG/trc"
	"go.uber.org/zap"
)

// DefaultPacketLength is the number of samples per data packet sent by the emulator.
const DefaultPacketLength = 64

// Emulator replays a recording as the acquisition system would stream it.
type Emulator struct {
	r            *trc.Reader
	packetLength int
	realTime     bool
	logger       *zap.Logger
}

// NewEmulator returns an emulator that sends packetLength samples per data
// packet. With realTime set, packets are paced at the recording's sampling rate.
func NewEmulator(r *trc.Reader, packetLength int, realTime bool) (*Emulator, error) {
	if packetLength <= 0 {
		return nil, fmt.Errorf("packet length must be positive, got %d", packetLength)
	}
	if _, err := trc.SampleWidth(r.Header().BytesPerSample); err != nil {
		return nil, err
	}
	return &Emulator{
		r:            r,
		packetLength: packetLength,
		realTime:     realTime,
		logger:       zap.NewNop(),
	}, nil
}

// WithLogger sets the logger for the emulator.
func (e *Emulator) WithLogger(log *zap.Logger) {
	e.logger = log.With(zap.String("component", "emulator"))
}

// Interval returns the time covered by one data packet.
func (e *Emulator) Interval() time.Duration {
	return e.r.Header().Duration(e.packetLength)
}

// Run sends the header packet, then the recording in data packets. Notes and
// markers falling inside a data packet are sent just before it; those at or
// past the end of the data are sent after the last data packet.
func (e *Emulator) Run(ctx context.Context, w io.Writer) error {
	hdr := e.r.Header()

	if err := WritePacket(w, HeaderPacket{Raw: e.r.RawHeader()}); err != nil {
		return fmt.Errorf("error sending header: %w", err)
	}

	notes := slices.Clone(hdr.Notes)
	slices.SortStableFunc(notes, func(a, b trc.Note) int { return cmp.Compare(a.Sample, b.Sample) })
	markers := slices.Clone(hdr.Markers)
	slices.SortStableFunc(markers, func(a, b trc.Marker) int { return cmp.Compare(a.Sample, b.Sample) })

	total := e.r.SampleCount()
	packets := (total + e.packetLength - 1) / e.packetLength
	e.logger.Info("Sending recording",
		zap.Int("samples", total),
		zap.Int("packets", packets),
		zap.Duration("interval", e.Interval()))

	var tick <-chan time.Time
	if e.realTime {
		ticker := time.NewTicker(e.Interval())
		defer ticker.Stop()
		tick = ticker.C
	}

	for start := 0; start < total; start += e.packetLength {
		stop := min(start+e.packetLength, total)

		var (
			inNotes   []trc.Note
			inMarkers []trc.Marker
		)
		inNotes, notes = splitBefore(notes, stop, func(n trc.Note) uint32 { return n.Sample })
		inMarkers, markers = splitBefore(markers, stop, func(m trc.Marker) uint32 { return m.Sample })
		if err := sendAnnotations(w, inNotes, inMarkers); err != nil {
			return err
		}

		raw, err := e.r.ReadRaw(start, stop)
		if err != nil {
			return err
		}
		if err := WritePacket(w, SampleDataPacket{Raw: raw}); err != nil {
			return fmt.Errorf("error sending samples [%d, %d): %w", start, stop, err)
		}

		if tick != nil && stop < total {
			select {
			case <-tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}

	// Annotations past the last sample follow the last data packet.
	if len(notes) > 0 || len(markers) > 0 {
		e.logger.Info("Sending annotations past the end of the data",
			zap.Int("notes", len(notes)),
			zap.Int("markers", len(markers)))
		if err := sendAnnotations(w, notes, markers); err != nil {
			return err
		}
	}

	e.logger.Info("Recording sent")
	return nil
}

func sendAnnotations(w io.Writer, notes []trc.Note, markers []trc.Marker) error {
	if len(notes) > 0 {
		payload, err := trc.EncodeNotes(notes)
		if err != nil {
			return err
		}
		if err := WritePacket(w, NotePacket{Raw: payload}); err != nil {
			return fmt.Errorf("error sending notes: %w", err)
		}
	}
	if len(markers) > 0 {
		if err := WritePacket(w, MarkerPacket{Raw: trc.EncodeMarkers(markers)}); err != nil {
			return fmt.Errorf("error sending markers: %w", err)
		}
	}
	return nil
}

// splitBefore splits a sorted slice into the elements with a sample below stop and the rest.
func splitBefore[T any](s []T, stop int, sample func(T) uint32) ([]T, []T) {
	i := 0
	for i < len(s) && int64(sample(s[i])) < int64(stop) {
		i++
	}
	return s[:i], s[i:]
}
