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
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// markerLevel is the reference level, in the channel's native unit, carried by marker channels.
const markerLevel = 50.0

// Closeness tolerances for the marker level check.
const (
	markerRelTol = 1e-5
	markerAbsTol = 1e-8
)

// SampleChunk is the calibrated output of one decode call.
type SampleChunk struct {
	Channels []string    // Channel name of each row
	Data     [][]float64 // Data[channel][sample]
}

// Samples returns the number of samples per channel.
func (c *SampleChunk) Samples() int {
	if len(c.Data) == 0 {
		return 0
	}
	return len(c.Data[0])
}

// DecodeOptions controls a single decode call.
type DecodeOptions struct {
	// Channels restricts and orders the output rows. Empty means the decoder's picks.
	Channels []string
	// KeepRaw returns integer codes instead of calibrated values.
	KeepRaw bool
	// UseVolt rescales calibrated values to volts.
	UseVolt bool
	// SkipCheck disables the marker channel integrity check.
	SkipCheck bool
}

// Decoder converts interleaved sample bytes into calibrated per-channel values.
// A Decoder holds no mutable state and may be shared between goroutines.
type Decoder struct {
	hdr     *Header
	names   []string
	picks   []int
	markers []int
	logger  *zap.Logger
}

// NewDecoder creates a decoder for hdr. picks selects and orders the channels
// of every decoded chunk; an empty list selects all channels in storage order.
//
// Headers built by hand are held to the same channel rules as parsed ones:
// at least one channel, one electrode per channel and a logical range that
// is not empty.
func NewDecoder(hdr *Header, picks []string) (*Decoder, error) {
	if hdr.ChannelCount <= 0 {
		return nil, malformed("no channels")
	}
	if len(hdr.Electrodes) != hdr.ChannelCount {
		return nil, malformed("%d electrodes for %d channels", len(hdr.Electrodes), hdr.ChannelCount)
	}
	for _, e := range hdr.Electrodes {
		if e.Calibration.LogicalMax <= e.Calibration.LogicalMin {
			return nil, malformed("channel %s: logical max %d is not greater than logical min %d",
				e.Name(), e.Calibration.LogicalMax, e.Calibration.LogicalMin)
		}
	}

	idx, err := hdr.Pick(picks)
	if err != nil {
		return nil, err
	}

	d := &Decoder{
		hdr:    hdr,
		names:  hdr.ChannelNames(),
		picks:  idx,
		logger: zap.NewNop(),
	}
	for i, e := range hdr.Electrodes {
		if e.IsMarker() {
			d.markers = append(d.markers, i)
		}
	}
	return d, nil
}

// WithLogger sets the logger used to report integrity check failures.
func (d *Decoder) WithLogger(log *zap.Logger) {
	d.logger = log.With(zap.String("component", "decoder"))
}

// Header returns the header the decoder was built from.
func (d *Decoder) Header() *Header {
	return d.hdr
}

// Picks returns the names of the channels selected at construction, in output order.
func (d *Decoder) Picks() []string {
	names := make([]string, len(d.picks))
	for i, idx := range d.picks {
		names[i] = d.names[idx]
	}
	return names
}

// SampleWidth returns the number of bytes each stored value occupies for the
// declared bytes-per-sample. Widths 1 and 2 are both stored as 16-bit codes.
func SampleWidth(bytesPerSample int) (int, error) {
	switch bytesPerSample {
	case 1, 2:
		return 2, nil
	case 4:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: %d bytes per sample", ErrUnsupportedSampleWidth, bytesPerSample)
}

// Decode converts a chunk of interleaved samples. Trailing bytes that do not
// form a whole sample of every channel are dropped.
//
// The returned bool is false when a marker channel strays from its reference
// level. This is not an error: a trigger pulse on the marker channel looks the
// same as a misaligned stream, so the caller decides what to do with the chunk.
func (d *Decoder) Decode(b []byte, opts DecodeOptions) (*SampleChunk, bool, error) {
	width, err := SampleWidth(d.hdr.BytesPerSample)
	if err != nil {
		return nil, false, err
	}

	rows := d.picks
	if len(opts.Channels) > 0 {
		if rows, err = d.hdr.Pick(opts.Channels); err != nil {
			return nil, false, err
		}
	}
	requested := len(rows)

	// Marker channels are decoded for the check even when not requested.
	if !opts.SkipCheck {
		rows = append(rows[:requested:requested], d.missingMarkers(rows)...)
	}

	scales := make([]float64, requested)
	for r, idx := range rows[:requested] {
		cal := d.hdr.Electrodes[idx].Calibration
		scales[r] = cal.Factor()
		if opts.UseVolt && !opts.KeepRaw {
			ratio, ok := cal.Unit.VoltRatio()
			if !ok {
				return nil, false, fmt.Errorf("%w: channel %s has unit %s", ErrUnconvertibleUnit, d.names[idx], cal.Unit)
			}
			scales[r] *= ratio
		}
	}

	n := len(b) / width / len(d.names)
	stride := width * len(d.names)

	chunk := &SampleChunk{
		Channels: make([]string, requested),
		Data:     make([][]float64, requested),
	}

	ok := true
	for r, idx := range rows {
		codes := make([]int32, n)
		for t := range codes {
			codes[t] = readCode(b, t*stride+idx*width, width)
		}

		if !opts.SkipCheck && d.hdr.Electrodes[idx].IsMarker() && !d.checkMarker(idx, codes) {
			ok = false
		}

		if r >= requested {
			continue
		}

		cal := d.hdr.Electrodes[idx].Calibration
		values := make([]float64, n)
		for t, code := range codes {
			if opts.KeepRaw {
				values[t] = float64(code)
			} else {
				values[t] = (float64(code) - float64(cal.LogicalGround)) * scales[r]
			}
		}
		chunk.Channels[r] = d.names[idx]
		chunk.Data[r] = values
	}

	if !ok {
		d.logger.Warn("Marker channel is not close to its reference level; data may be corrupted unless a trigger was received",
			zap.Int("samples", n))
	}

	return chunk, ok, nil
}

// missingMarkers returns the marker channels not already in rows.
func (d *Decoder) missingMarkers(rows []int) []int {
	var missing []int
	for _, m := range d.markers {
		found := false
		for _, idx := range rows {
			if idx == m {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, m)
		}
	}
	return missing
}

// checkMarker reports whether every sample of a marker channel sits at the
// reference level, using the channel's native calibration.
func (d *Decoder) checkMarker(idx int, codes []int32) bool {
	cal := d.hdr.Electrodes[idx].Calibration
	for _, code := range codes {
		v := math.Abs(cal.Physical(code))
		if math.Abs(v-markerLevel) > markerAbsTol+markerRelTol*markerLevel {
			return false
		}
	}
	return true
}

func readCode(b []byte, off, width int) int32 {
	if width == 2 {
		return int32(binary.LittleEndian.Uint16(b[off:]))
	}
	return int32(binary.LittleEndian.Uint32(b[off:]))
}
