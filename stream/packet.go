// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package stream carries TRC recordings over the acquisition system's TCP
// framing: a 10-byte frame header followed by a typed payload.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/OpenPSG/trc"
)

// Magic is the tag that opens every frame header.
const Magic = "MICM"

// FrameHeaderSize is the size of a frame header: magic, packet type and payload length.
const FrameHeaderSize = 10

// MaxPayloadSize bounds the payload length accepted from a frame header.
const MaxPayloadSize = 64 << 20

var (
	// ErrBadMagic is returned when a frame header does not start with Magic.
	ErrBadMagic = errors.New("bad frame magic")
	// ErrPayloadTooLarge is returned when a frame announces more than MaxPayloadSize bytes.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// PacketType is the payload type code of a frame.
type PacketType uint16

const (
	PacketHeader     PacketType = 0
	PacketSampleData PacketType = 1
	PacketNote       PacketType = 2
	PacketMarker     PacketType = 3
)

func (t PacketType) String() string {
	switch t {
	case PacketHeader:
		return "header"
	case PacketSampleData:
		return "data"
	case PacketNote:
		return "note"
	case PacketMarker:
		return "marker"
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Packet is one decoded frame. It is one of HeaderPacket, SampleDataPacket,
// NotePacket, MarkerPacket or UnknownPacket.
type Packet interface {
	Type() PacketType
	Payload() []byte

	packet()
}

// HeaderPacket carries the recording header, up to the sample data offset.
type HeaderPacket struct{ Raw []byte }

// SampleDataPacket carries interleaved samples.
type SampleDataPacket struct{ Raw []byte }

// NotePacket carries NOTE records.
type NotePacket struct{ Raw []byte }

// MarkerPacket carries TRIGGER records.
type MarkerPacket struct{ Raw []byte }

// UnknownPacket is a frame with an unrecognized type code. Its payload has
// been consumed, so the stream stays aligned.
type UnknownPacket struct {
	Code PacketType
	Raw  []byte
}

func (HeaderPacket) Type() PacketType     { return PacketHeader }
func (SampleDataPacket) Type() PacketType { return PacketSampleData }
func (NotePacket) Type() PacketType       { return PacketNote }
func (MarkerPacket) Type() PacketType     { return PacketMarker }
func (p UnknownPacket) Type() PacketType  { return p.Code }

func (p HeaderPacket) Payload() []byte     { return p.Raw }
func (p SampleDataPacket) Payload() []byte { return p.Raw }
func (p NotePacket) Payload() []byte       { return p.Raw }
func (p MarkerPacket) Payload() []byte     { return p.Raw }
func (p UnknownPacket) Payload() []byte    { return p.Raw }

func (HeaderPacket) packet()     {}
func (SampleDataPacket) packet() {}
func (NotePacket) packet()       {}
func (MarkerPacket) packet()     {}
func (UnknownPacket) packet()    {}

// Header decodes the header payload.
func (p HeaderPacket) Header() (*trc.Header, error) {
	return trc.ParseHeader(p.Raw)
}

// Notes decodes the note payload.
func (p NotePacket) Notes() []trc.Note {
	return trc.ParseNotes(p.Raw)
}

// Markers decodes the marker payload.
func (p MarkerPacket) Markers() []trc.Marker {
	return trc.ParseMarkers(p.Raw)
}

// NewPacket wraps a payload in the variant matching its type code.
func NewPacket(t PacketType, payload []byte) Packet {
	switch t {
	case PacketHeader:
		return HeaderPacket{Raw: payload}
	case PacketSampleData:
		return SampleDataPacket{Raw: payload}
	case PacketNote:
		return NotePacket{Raw: payload}
	case PacketMarker:
		return MarkerPacket{Raw: payload}
	}
	return UnknownPacket{Code: t, Raw: payload}
}

// FrameHeader is the fixed prefix of every frame.
type FrameHeader struct {
	Type   PacketType
	Length uint32
}

// ParseFrameHeader decodes a 10-byte frame header.
func ParseFrameHeader(b []byte) (FrameHeader, error) {
	if len(b) < FrameHeaderSize {
		return FrameHeader{}, fmt.Errorf("frame header is %d bytes, need %d", len(b), FrameHeaderSize)
	}
	if string(b[:4]) != Magic {
		return FrameHeader{}, fmt.Errorf("%w: %q", ErrBadMagic, b[:4])
	}
	return FrameHeader{
		Type:   PacketType(binary.LittleEndian.Uint16(b[4:6])),
		Length: binary.LittleEndian.Uint32(b[6:10]),
	}, nil
}

// AppendFrameHeader appends the encoded frame header to b.
func AppendFrameHeader(b []byte, h FrameHeader) []byte {
	b = append(b, Magic...)
	b = binary.LittleEndian.AppendUint16(b, uint16(h.Type))
	return binary.LittleEndian.AppendUint32(b, h.Length)
}

// ReadPacket reads one frame. It returns io.EOF only when the stream ends
// cleanly between frames.
func ReadPacket(r io.Reader) (Packet, error) {
	b := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	h, err := ParseFrameHeader(b)
	if err != nil {
		return nil, err
	}
	if h.Length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.Length)
	}

	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("error reading %s payload: %w", h.Type, noEOF(err))
	}
	return NewPacket(h.Type, payload), nil
}

// WritePacket writes one frame in a single Write call.
func WritePacket(w io.Writer, p Packet) error {
	payload := p.Payload()
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	b := make([]byte, 0, FrameHeaderSize+len(payload))
	b = AppendFrameHeader(b, FrameHeader{Type: p.Type(), Length: uint32(len(payload))})
	b = append(b, payload...)
	_, err := w.Write(b)
	return err
}

// noEOF turns a clean EOF inside a frame into io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
