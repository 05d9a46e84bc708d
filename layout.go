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
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Fixed offsets of the System98 header. All multi-byte integers are little-endian.
const (
	offsetTitle          = 0
	offsetLaboratory     = 32
	offsetSurname        = 64
	offsetName           = 86
	offsetBirthDate      = 106
	offsetStartTime      = 128
	offsetAcqUnit        = 134
	offsetFileType       = 136
	offsetDataStart      = 138
	offsetChannelCount   = 142
	offsetMultiplexer    = 144
	offsetSamplingRate   = 146
	offsetBytesPerSample = 148
	offsetCompression    = 150
	offsetMontages       = 152
	offsetHeaderType     = 175
	offsetZones          = 176

	sizeTitle      = 32
	sizeLaboratory = 32
	sizeSurname    = 22
	sizeName       = 20

	zoneCount     = 15
	zoneEntrySize = 16
	zoneNameSize  = 8

	electrodeRecordSize = 128
	electrodeLabelSize  = 6
	descriptionSize     = 32

	noteRecordSize   = 44
	noteTextSize     = 40
	markerRecordSize = 6
	flagRecordSize   = 8
	segmentSize      = 8
	impedanceSize    = 2
	eventRecordSize  = 12
)

// MinHeaderSize is the size of the fixed header up to the end of the zone directory.
const MinHeaderSize = offsetZones + zoneCount*zoneEntrySize

// DataOffsetEnd is the number of leading bytes needed to locate the sample data.
const DataOffsetEnd = offsetDataStart + 4

// Sentinel values terminating the NOTE and TRIGGER zones.
const (
	noteSentinel         uint32 = 0
	markerSentinelSample uint32 = 0xFFFFFFFF
	markerSentinelCode   uint16 = 0xFFFF
)

// Zone names, in directory order.
const (
	ZoneOrder    = "ORDER"
	ZoneLabcod   = "LABCOD"
	ZoneNote     = "NOTE"
	ZoneFlags    = "FLAGS"
	ZoneTronca   = "TRONCA"
	ZoneImpedB   = "IMPED_B"
	ZoneImpedE   = "IMPED_E"
	ZoneMontage  = "MONTAGE"
	ZoneCompress = "COMPRESS"
	ZoneAverage  = "AVERAGE"
	ZoneHistory  = "HISTORY"
	ZoneDVideo   = "DVIDEO"
	ZoneEventA   = "EVENT A"
	ZoneEventB   = "EVENT B"
	ZoneTrigger  = "TRIGGER"
)

var zoneNames = [zoneCount]string{
	ZoneOrder, ZoneLabcod, ZoneNote, ZoneFlags, ZoneTronca,
	ZoneImpedB, ZoneImpedE, ZoneMontage, ZoneCompress, ZoneAverage,
	ZoneHistory, ZoneDVideo, ZoneEventA, ZoneEventB, ZoneTrigger,
}

// Zone is an entry of the zone directory.
type Zone struct {
	Name   string
	Pos    uint32
	Length uint32
}

// bytes returns the zone contents, or an error if the zone lies outside b.
func (z Zone) bytes(b []byte) ([]byte, error) {
	end := uint64(z.Pos) + uint64(z.Length)
	if end > uint64(len(b)) {
		return nil, malformed("zone %s [%d, %d) exceeds header size %d", z.Name, z.Pos, end, len(b))
	}
	return b[z.Pos:end], nil
}

var latin1 = charmap.ISO8859_1

// readString decodes an ISO-8859-1 field, trimming padding and control bytes.
func readString(b []byte) string {
	s, err := latin1.NewDecoder().Bytes(b)
	if err != nil {
		// Every byte value is defined in ISO-8859-1.
		s = b
	}
	return strings.TrimFunc(string(s), func(r rune) bool {
		return r <= ' '
	})
}

func readUint16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

func readInt16(b []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(b[off:]))
}

func readUint32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func readInt32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off:]))
}

// readStartTime decodes day, month, year-1900, hour, minute and second bytes.
func readStartTime(b []byte) (time.Time, error) {
	day, month, year := int(b[0]), int(b[1]), int(b[2])+1900
	hour, minute, sec := int(b[3]), int(b[4]), int(b[5])
	if !validDate(year, month, day) || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, malformed("invalid recording time %02d/%02d/%d %02d:%02d:%02d", day, month, year, hour, minute, sec)
	}
	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC), nil
}

// readBirthDate decodes month, day, year-1900 bytes. Invalid dates are left unset.
func readBirthDate(b []byte) time.Time {
	month, day, year := int(b[0]), int(b[1]), int(b[2])+1900
	if !validDate(year, month, day) {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	return day <= time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// readZones decodes the zone directory and checks every slot holds the expected zone.
func readZones(b []byte) (map[string]Zone, error) {
	zones := make(map[string]Zone, zoneCount)
	for i, want := range zoneNames {
		off := offsetZones + i*zoneEntrySize
		name := strings.TrimRight(string(b[off:off+zoneNameSize]), " \x00")
		if name != want {
			return nil, malformed("zone directory slot %d: expected %q, got %q", i, want, name)
		}
		zones[name] = Zone{
			Name:   name,
			Pos:    readUint32(b, off+zoneNameSize),
			Length: readUint32(b, off+zoneNameSize+4),
		}
	}
	return zones, nil
}

// readOrder decodes the storage order: n original electrode indices.
func readOrder(b []byte, z Zone, n int) ([]uint16, error) {
	if uint64(z.Pos)+uint64(n)*2 > uint64(len(b)) {
		return nil, malformed("zone %s too short for %d channels", z.Name, n)
	}
	order := make([]uint16, n)
	for i := range order {
		order[i] = readUint16(b, int(z.Pos)+i*2)
	}
	return order, nil
}

// readElectrodes decodes the LABCOD record of every stored channel, following order.
func readElectrodes(b []byte, z Zone, order []uint16) ([]Electrode, error) {
	electrodes := make([]Electrode, len(order))
	for i, idx := range order {
		off := uint64(z.Pos) + uint64(idx)*electrodeRecordSize
		if off+electrodeRecordSize > uint64(len(b)) {
			return nil, malformed("electrode %d record exceeds header size %d", idx, len(b))
		}
		e, err := readElectrode(b[off : off+electrodeRecordSize])
		if err != nil {
			return nil, err
		}
		electrodes[i] = e
	}
	return electrodes, nil
}

// readElectrode decodes one 128-byte LABCOD record.
func readElectrode(rec []byte) (Electrode, error) {
	e := Electrode{
		Status:    rec[0],
		Reference: rec[1],
		Positive:  readString(rec[2 : 2+electrodeLabelSize]),
		Negative:  readString(rec[8 : 8+electrodeLabelSize]),
		Calibration: Calibration{
			LogicalMin:    readInt32(rec, 14),
			LogicalMax:    readInt32(rec, 18),
			LogicalGround: readInt32(rec, 22),
			PhysicalMin:   readInt32(rec, 26),
			PhysicalMax:   readInt32(rec, 30),
			Unit:          Unit(readInt16(rec, 34)),
		},
		HighPassLimit:   readUint16(rec, 36),
		HighPassType:    readUint16(rec, 38),
		LowPassLimit:    readUint16(rec, 40),
		LowPassType:     readUint16(rec, 42),
		RateCoefficient: readUint16(rec, 44),
		Description:     readString(rec[58 : 58+descriptionSize]),
	}
	if e.Calibration.LogicalMax <= e.Calibration.LogicalMin {
		return Electrode{}, malformed("channel %s: logical max %d is not greater than logical min %d",
			e.Name(), e.Calibration.LogicalMax, e.Calibration.LogicalMin)
	}
	return e, nil
}

// ParseNotes decodes NOTE records (4-byte sample, 40-byte text). Decoding
// stops at the first record with a zero sample; a trailing partial record is ignored.
func ParseNotes(b []byte) []Note {
	var notes []Note
	for off := 0; off+noteRecordSize <= len(b); off += noteRecordSize {
		sample := readUint32(b, off)
		if sample == noteSentinel {
			break
		}
		notes = append(notes, Note{
			Sample: sample,
			Text:   readString(b[off+4 : off+4+noteTextSize]),
		})
	}
	return notes
}

// ParseMarkers decodes TRIGGER records (4-byte sample, 2-byte code). Decoding
// stops at the 0xFFFFFFFF/0xFFFF sentinel; a trailing partial record is ignored.
func ParseMarkers(b []byte) []Marker {
	var markers []Marker
	for off := 0; off+markerRecordSize <= len(b); off += markerRecordSize {
		m := Marker{
			Sample: readUint32(b, off),
			Code:   readUint16(b, off+4),
		}
		if m.Sample == markerSentinelSample && m.Code == markerSentinelCode {
			break
		}
		markers = append(markers, m)
	}
	return markers
}

func readFlags(b []byte) []Flag {
	flags := make([]Flag, 0, len(b)/flagRecordSize)
	for off := 0; off+flagRecordSize <= len(b); off += flagRecordSize {
		flags = append(flags, Flag{Begin: readUint32(b, off), End: readUint32(b, off+4)})
	}
	return flags
}

func readSegments(b []byte) []Segment {
	segments := make([]Segment, 0, len(b)/segmentSize)
	for off := 0; off+segmentSize <= len(b); off += segmentSize {
		segments = append(segments, Segment{TimeInSamples: readUint32(b, off), Sample: readUint32(b, off+4)})
	}
	return segments
}

func readImpedances(b []byte) []Impedance {
	imps := make([]Impedance, 0, len(b)/impedanceSize)
	for off := 0; off+impedanceSize <= len(b); off += impedanceSize {
		imps = append(imps, Impedance{Positive: b[off], Negative: b[off+1]})
	}
	return imps
}

func readEvents(b []byte) []Event {
	events := make([]Event, 0, len(b)/eventRecordSize)
	for off := 0; off+eventRecordSize <= len(b); off += eventRecordSize {
		events = append(events, Event{
			Code:  readUint32(b, off),
			Begin: readUint32(b, off+4),
			End:   readUint32(b, off+8),
		})
	}
	return events
}

// ReadDataOffset returns the sample data offset from the first DataOffsetEnd bytes of a recording.
func ReadDataOffset(b []byte) (int, error) {
	if len(b) < DataOffsetEnd {
		return 0, malformed("need %d bytes to locate data, got %d", DataOffsetEnd, len(b))
	}
	return int(readUint32(b, offsetDataStart)), nil
}
