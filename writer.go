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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// MaxNotes is the capacity of the NOTE zone written by Writer.
	MaxNotes = 200
	// MaxMarkers is the capacity of the TRIGGER zone written by Writer.
	MaxMarkers = 8192

	zonesStart = 640
)

// Writer writes System98 TRC files.
type Writer struct {
	w       io.WriteSeeker
	hdr     *Header
	zones   [zoneCount]Zone
	width   int
	samples int // Number of samples per channel written so far.
}

// Create creates a new TRC writer that writes to the given writer. The
// header's Electrodes define the channels; ChannelCount, DataOffset,
// NoteOffset and HeaderType are computed.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	if len(hdr.Electrodes) == 0 {
		return nil, fmt.Errorf("no channels")
	}
	if hdr.SamplingRate <= 0 || hdr.SamplingRate > math.MaxUint16 {
		return nil, fmt.Errorf("invalid sampling rate %d", hdr.SamplingRate)
	}
	width, err := SampleWidth(hdr.BytesPerSample)
	if err != nil {
		return nil, err
	}
	for _, e := range hdr.Electrodes {
		if e.Calibration.LogicalMax <= e.Calibration.LogicalMin {
			return nil, fmt.Errorf("channel %s: logical max must be greater than logical min", e.Name())
		}
	}
	if len(hdr.Order) == 0 {
		hdr.Order = make([]uint16, len(hdr.Electrodes))
		for i := range hdr.Order {
			hdr.Order[i] = uint16(i)
		}
	}
	if len(hdr.Order) != len(hdr.Electrodes) {
		return nil, fmt.Errorf("expected %d order entries, got %d", len(hdr.Electrodes), len(hdr.Order))
	}
	if len(hdr.Notes) > MaxNotes || len(hdr.Markers) > MaxMarkers {
		return nil, fmt.Errorf("too many annotations")
	}

	hdr.ChannelCount = len(hdr.Electrodes)
	hdr.HeaderType = HeaderTypeSystem98

	tw := &Writer{w: w, hdr: &hdr, width: width}
	tw.layout()

	// Write the initial header
	if err := tw.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return tw, nil
}

// layout places every zone after the fixed header and sets the data offset.
func (tw *Writer) layout() {
	var labcodRecords int
	for _, idx := range tw.hdr.Order {
		labcodRecords = max(labcodRecords, int(idx)+1)
	}

	lengths := map[string]int{
		ZoneOrder:   2 * len(tw.hdr.Order),
		ZoneLabcod:  electrodeRecordSize * labcodRecords,
		ZoneNote:    noteRecordSize * MaxNotes,
		ZoneFlags:   flagRecordSize * len(tw.hdr.Flags),
		ZoneTronca:  segmentSize * len(tw.hdr.Segments),
		ZoneImpedB:  impedanceSize * len(tw.hdr.ImpedanceBegin),
		ZoneImpedE:  impedanceSize * len(tw.hdr.ImpedanceEnd),
		ZoneEventA:  eventRecordSize * len(tw.hdr.EventsA),
		ZoneEventB:  eventRecordSize * len(tw.hdr.EventsB),
		ZoneTrigger: markerRecordSize * MaxMarkers,
	}

	pos := zonesStart
	for i, name := range zoneNames {
		tw.zones[i] = Zone{Name: name, Pos: uint32(pos), Length: uint32(lengths[name])}
		pos += lengths[name]
	}

	tw.hdr.NoteOffset = int(tw.zone(ZoneNote).Pos)
	tw.hdr.DataOffset = pos
}

func (tw *Writer) zone(name string) Zone {
	for _, z := range tw.zones {
		if z.Name == name {
			return z
		}
	}
	return Zone{}
}

// Header returns the header as it will be written.
func (tw *Writer) Header() *Header {
	return tw.hdr
}

// AddNote attaches an operator note to a sample. Sample 0 terminates the
// NOTE zone and cannot carry a note.
func (tw *Writer) AddNote(sample uint32, text string) error {
	if sample == noteSentinel {
		return fmt.Errorf("note sample must be non-zero")
	}
	if len(tw.hdr.Notes) >= MaxNotes {
		return fmt.Errorf("too many notes, max is %d", MaxNotes)
	}
	if err := putString(make([]byte, noteTextSize), text); err != nil {
		return err
	}
	tw.hdr.Notes = append(tw.hdr.Notes, Note{Sample: sample, Text: text})
	return nil
}

// AddMarker records a trigger code at a sample.
func (tw *Writer) AddMarker(sample uint32, code uint16) error {
	if sample == markerSentinelSample && code == markerSentinelCode {
		return fmt.Errorf("marker collides with the TRIGGER sentinel")
	}
	if len(tw.hdr.Markers) >= MaxMarkers {
		return fmt.Errorf("too many markers, max is %d", MaxMarkers)
	}
	tw.hdr.Markers = append(tw.hdr.Markers, Marker{Sample: sample, Code: code})
	return nil
}

// Close finalizes the TRC file by rewriting the header with the annotations added so far.
func (tw *Writer) Close() error {
	if err := tw.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes physical values, one slice per channel in storage order.
// Values are converted to the nearest code within each channel's logical range.
func (tw *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != tw.hdr.ChannelCount {
		return fmt.Errorf("expected %d signals, got %d", tw.hdr.ChannelCount, len(signals))
	}

	n := len(signals[0])
	for i, signal := range signals {
		if len(signal) != n {
			return fmt.Errorf("signal %d has %d samples, expected %d", i, len(signal), n)
		}
	}

	if _, err := tw.w.Seek(int64(tw.hdr.DataOffset)+int64(tw.samples*tw.width*tw.hdr.ChannelCount), io.SeekStart); err != nil {
		return err
	}

	writer := bufio.NewWriter(tw.w)
	buf := make([]byte, tw.width)

	// Samples are interleaved: every channel of sample t, then sample t+1.
	for t := 0; t < n; t++ {
		for i, e := range tw.hdr.Electrodes {
			code := e.Calibration.Code(signals[i][t])
			if tw.width == 2 {
				binary.LittleEndian.PutUint16(buf, uint16(min(max(code, 0), math.MaxUint16)))
			} else {
				binary.LittleEndian.PutUint32(buf, uint32(code))
			}
			if _, err := writer.Write(buf); err != nil {
				return err
			}
		}
	}

	// Ensure all data is flushed to the underlying writer
	if err := writer.Flush(); err != nil {
		return err
	}

	tw.samples += n
	return nil
}

// writeHeader writes the header region to the start of the file.
func (tw *Writer) writeHeader() error {
	b, err := tw.encodeHeader()
	if err != nil {
		return err
	}

	// Rewind to the beginning of the file.
	if _, err := tw.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	_, err = tw.w.Write(b)
	return err
}

func (tw *Writer) encodeHeader() ([]byte, error) {
	hdr := tw.hdr
	b := make([]byte, hdr.DataOffset)
	le := binary.LittleEndian

	for _, f := range []struct {
		off, size int
		s         string
	}{
		{offsetTitle, sizeTitle, hdr.Title},
		{offsetLaboratory, sizeLaboratory, hdr.Laboratory},
		{offsetSurname, sizeSurname, hdr.Surname},
		{offsetName, sizeName, hdr.Name},
	} {
		if err := putString(b[f.off:f.off+f.size], f.s); err != nil {
			return nil, err
		}
	}

	if !hdr.BirthDate.IsZero() {
		b[offsetBirthDate] = byte(hdr.BirthDate.Month())
		b[offsetBirthDate+1] = byte(hdr.BirthDate.Day())
		b[offsetBirthDate+2] = byte(hdr.BirthDate.Year() - 1900)
	}

	st := hdr.StartTime
	if st.Year() < 1900 || st.Year() > 1900+math.MaxUint8 {
		return nil, fmt.Errorf("start time %s out of range", st)
	}
	copy(b[offsetStartTime:], []byte{
		byte(st.Day()), byte(st.Month()), byte(st.Year() - 1900),
		byte(st.Hour()), byte(st.Minute()), byte(st.Second()),
	})

	le.PutUint16(b[offsetAcqUnit:], uint16(hdr.AcquisitionUnit))
	le.PutUint16(b[offsetFileType:], uint16(hdr.FileType))
	le.PutUint32(b[offsetDataStart:], uint32(hdr.DataOffset))
	le.PutUint16(b[offsetChannelCount:], uint16(hdr.ChannelCount))
	le.PutUint16(b[offsetMultiplexer:], hdr.Multiplexer)
	le.PutUint16(b[offsetSamplingRate:], uint16(hdr.SamplingRate))
	le.PutUint16(b[offsetBytesPerSample:], uint16(hdr.BytesPerSample))
	le.PutUint16(b[offsetCompression:], hdr.Compression)
	le.PutUint16(b[offsetMontages:], hdr.Montages)
	b[offsetHeaderType] = byte(hdr.HeaderType)

	for i, z := range tw.zones {
		off := offsetZones + i*zoneEntrySize
		copy(b[off:off+zoneNameSize], fmt.Sprintf("%-8s", z.Name))
		le.PutUint32(b[off+zoneNameSize:], z.Pos)
		le.PutUint32(b[off+zoneNameSize+4:], z.Length)
	}

	order := tw.zone(ZoneOrder)
	labcod := tw.zone(ZoneLabcod)
	for i, idx := range hdr.Order {
		le.PutUint16(b[int(order.Pos)+2*i:], idx)
		rec := b[int(labcod.Pos)+int(idx)*electrodeRecordSize:][:electrodeRecordSize]
		if err := putElectrode(rec, hdr.Electrodes[i]); err != nil {
			return nil, err
		}
	}

	notes, err := EncodeNotes(hdr.Notes)
	if err != nil {
		return nil, err
	}
	copy(b[tw.zone(ZoneNote).Pos:], notes)

	// Unused TRIGGER records hold the sentinel.
	trigger := tw.zone(ZoneTrigger)
	p := b[trigger.Pos : trigger.Pos+trigger.Length]
	for i := range p {
		p[i] = 0xFF
	}
	copy(p, EncodeMarkers(hdr.Markers))

	p = b[tw.zone(ZoneFlags).Pos:]
	for i, f := range hdr.Flags {
		le.PutUint32(p[i*flagRecordSize:], f.Begin)
		le.PutUint32(p[i*flagRecordSize+4:], f.End)
	}
	p = b[tw.zone(ZoneTronca).Pos:]
	for i, s := range hdr.Segments {
		le.PutUint32(p[i*segmentSize:], s.TimeInSamples)
		le.PutUint32(p[i*segmentSize+4:], s.Sample)
	}
	for _, z := range []struct {
		name string
		imps []Impedance
	}{{ZoneImpedB, hdr.ImpedanceBegin}, {ZoneImpedE, hdr.ImpedanceEnd}} {
		p = b[tw.zone(z.name).Pos:]
		for i, imp := range z.imps {
			p[i*impedanceSize] = imp.Positive
			p[i*impedanceSize+1] = imp.Negative
		}
	}
	for _, z := range []struct {
		name   string
		events []Event
	}{{ZoneEventA, hdr.EventsA}, {ZoneEventB, hdr.EventsB}} {
		p = b[tw.zone(z.name).Pos:]
		for i, ev := range z.events {
			le.PutUint32(p[i*eventRecordSize:], ev.Code)
			le.PutUint32(p[i*eventRecordSize+4:], ev.Begin)
			le.PutUint32(p[i*eventRecordSize+8:], ev.End)
		}
	}

	return b, nil
}

func putElectrode(rec []byte, e Electrode) error {
	le := binary.LittleEndian
	rec[0] = e.Status
	rec[1] = e.Reference
	if err := putString(rec[2:2+electrodeLabelSize], e.Positive); err != nil {
		return err
	}
	if err := putString(rec[8:8+electrodeLabelSize], e.Negative); err != nil {
		return err
	}
	c := e.Calibration
	le.PutUint32(rec[14:], uint32(c.LogicalMin))
	le.PutUint32(rec[18:], uint32(c.LogicalMax))
	le.PutUint32(rec[22:], uint32(c.LogicalGround))
	le.PutUint32(rec[26:], uint32(c.PhysicalMin))
	le.PutUint32(rec[30:], uint32(c.PhysicalMax))
	le.PutUint16(rec[34:], uint16(c.Unit))
	le.PutUint16(rec[36:], e.HighPassLimit)
	le.PutUint16(rec[38:], e.HighPassType)
	le.PutUint16(rec[40:], e.LowPassLimit)
	le.PutUint16(rec[42:], e.LowPassType)
	le.PutUint16(rec[44:], e.RateCoefficient)
	return putString(rec[58:58+descriptionSize], e.Description)
}

// putString writes s as ISO-8859-1 into a zero padded field.
func putString(field []byte, s string) error {
	enc, err := latin1.NewEncoder().String(s)
	if err != nil {
		return fmt.Errorf("error encoding %q: %w", s, err)
	}
	if len(enc) > len(field) {
		return fmt.Errorf("%q does not fit in %d bytes", s, len(field))
	}
	copy(field, enc)
	return nil
}

// EncodeNotes encodes notes as NOTE records, the inverse of ParseNotes.
func EncodeNotes(notes []Note) ([]byte, error) {
	b := make([]byte, len(notes)*noteRecordSize)
	for i, n := range notes {
		if n.Sample == noteSentinel {
			return nil, fmt.Errorf("note %q: sample must be non-zero", n.Text)
		}
		rec := b[i*noteRecordSize:]
		binary.LittleEndian.PutUint32(rec, n.Sample)
		if err := putString(rec[4:4+noteTextSize], n.Text); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// EncodeMarkers encodes markers as TRIGGER records, the inverse of ParseMarkers.
func EncodeMarkers(markers []Marker) []byte {
	b := make([]byte, len(markers)*markerRecordSize)
	for i, m := range markers {
		binary.LittleEndian.PutUint32(b[i*markerRecordSize:], m.Sample)
		binary.LittleEndian.PutUint16(b[i*markerRecordSize+4:], m.Code)
	}
	return b
}
