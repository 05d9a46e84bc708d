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
	"fmt"
	"io"
)

// Reader reads TRC recordings.
type Reader struct {
	r         io.ReadSeeker
	raw       []byte
	hdr       *Header
	dec       *Decoder
	width     int
	dataBytes int64
}

// Open opens a TRC recording for reading. Only the header prefix, up to the
// sample data offset, is read.
func Open(r io.ReadSeeker) (*Reader, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to header: %w", err)
	}

	b := make([]byte, DataOffsetEnd)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	dataOffset, err := ReadDataOffset(b)
	if err != nil {
		return nil, err
	}
	if dataOffset < MinHeaderSize {
		return nil, malformed("data offset %d is inside the fixed header", dataOffset)
	}

	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("error seeking to end of data: %w", err)
	}
	if int64(dataOffset) > end {
		return nil, malformed("data offset %d is past the end of the file (%d bytes)", dataOffset, end)
	}
	if _, err := r.Seek(int64(len(b)), io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to header: %w", err)
	}

	raw := make([]byte, dataOffset)
	copy(raw, b)
	if _, err := io.ReadFull(r, raw[len(b):]); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	dec, err := NewDecoder(hdr, nil)
	if err != nil {
		return nil, err
	}

	// An unsupported width fails on read, the header stays inspectable.
	width, _ := SampleWidth(hdr.BytesPerSample)

	return &Reader{
		r:         r,
		raw:       raw,
		hdr:       hdr,
		dec:       dec,
		width:     width,
		dataBytes: end - int64(dataOffset),
	}, nil
}

// Header returns the decoded header.
func (tr *Reader) Header() *Header {
	return tr.hdr
}

// Decoder returns the decoder bound to the header.
func (tr *Reader) Decoder() *Decoder {
	return tr.dec
}

// Notes returns the operator notes.
func (tr *Reader) Notes() []Note {
	return tr.hdr.Notes
}

// Markers returns the trigger markers.
func (tr *Reader) Markers() []Marker {
	return tr.hdr.Markers
}

// RawHeader returns a copy of the header prefix.
func (tr *Reader) RawHeader() []byte {
	b := make([]byte, len(tr.raw))
	copy(b, tr.raw)
	return b
}

// SampleCount returns the number of whole samples per channel in the recording.
func (tr *Reader) SampleCount() int {
	if tr.width == 0 {
		return 0
	}
	return int(tr.dataBytes / int64(tr.width*tr.hdr.ChannelCount))
}

// ReadOptions controls which part of the recording Data decodes.
type ReadOptions struct {
	Start int // First sample
	Stop  int // One past the last sample, 0 reads to the end
	DecodeOptions
}

// Data decodes samples [Start, Stop) of the recording. See Decoder.Decode for
// the meaning of the returned bool.
func (tr *Reader) Data(opts ReadOptions) (*SampleChunk, bool, error) {
	raw, err := tr.ReadRaw(opts.Start, opts.Stop)
	if err != nil {
		return nil, false, err
	}
	return tr.dec.Decode(raw, opts.DecodeOptions)
}

// ReadRaw returns the undecoded bytes of samples [start, stop). A stop of 0
// reads to the end of the recording.
func (tr *Reader) ReadRaw(start, stop int) ([]byte, error) {
	if tr.width == 0 {
		_, err := SampleWidth(tr.hdr.BytesPerSample)
		return nil, err
	}

	count := tr.SampleCount()
	if stop == 0 {
		stop = count
	}
	if start < 0 || start > stop || stop > count {
		return nil, fmt.Errorf("%w: [%d, %d) of %d samples", ErrOutOfRange, start, stop, count)
	}

	frame := int64(tr.width * tr.hdr.ChannelCount)
	pos := int64(tr.hdr.DataOffset) + int64(start)*frame
	if _, err := tr.r.Seek(pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to position: %w", err)
	}

	b := make([]byte, int64(stop-start)*frame)
	if _, err := io.ReadFull(tr.r, b); err != nil {
		return nil, fmt.Errorf("error reading sample data: %w", err)
	}
	return b, nil
}
