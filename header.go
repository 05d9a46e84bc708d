// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package trc

// ParseHeader decodes a header region. b must hold the header up to the
// sample data offset; a file's prefix or a stream header packet both qualify.
// No partial header is returned on error.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < MinHeaderSize {
		return nil, malformed("header is %d bytes, need at least %d", len(b), MinHeaderSize)
	}

	hdr := &Header{
		Title:           readString(b[offsetTitle : offsetTitle+sizeTitle]),
		Laboratory:      readString(b[offsetLaboratory : offsetLaboratory+sizeLaboratory]),
		Surname:         readString(b[offsetSurname : offsetSurname+sizeSurname]),
		Name:            readString(b[offsetName : offsetName+sizeName]),
		BirthDate:       readBirthDate(b[offsetBirthDate : offsetBirthDate+3]),
		AcquisitionUnit: AcquisitionUnit(readInt16(b, offsetAcqUnit)),
		FileType:        FileType(readUint16(b, offsetFileType)),
		DataOffset:      int(readUint32(b, offsetDataStart)),
		ChannelCount:    int(readUint16(b, offsetChannelCount)),
		Multiplexer:     readUint16(b, offsetMultiplexer),
		SamplingRate:    int(readUint16(b, offsetSamplingRate)),
		BytesPerSample:  int(readUint16(b, offsetBytesPerSample)),
		Compression:     readUint16(b, offsetCompression),
		Montages:        readUint16(b, offsetMontages),
		HeaderType:      HeaderType(int8(b[offsetHeaderType])),
	}

	if hdr.HeaderType != HeaderTypeSystem98 {
		return nil, malformed("unsupported header type %d (%s)", hdr.HeaderType, hdr.HeaderType)
	}
	if hdr.ChannelCount == 0 {
		return nil, malformed("no channels")
	}
	if hdr.SamplingRate == 0 {
		return nil, malformed("zero sampling rate")
	}

	var err error
	hdr.StartTime, err = readStartTime(b[offsetStartTime : offsetStartTime+6])
	if err != nil {
		return nil, err
	}

	zones, err := readZones(b)
	if err != nil {
		return nil, err
	}

	hdr.Order, err = readOrder(b, zones[ZoneOrder], hdr.ChannelCount)
	if err != nil {
		return nil, err
	}

	hdr.Electrodes, err = readElectrodes(b, zones[ZoneLabcod], hdr.Order)
	if err != nil {
		return nil, err
	}

	hdr.NoteOffset = int(zones[ZoneNote].Pos)

	// Annotation and metadata zones, in directory order.
	readers := []struct {
		zone string
		read func([]byte)
	}{
		{ZoneNote, func(p []byte) { hdr.Notes = ParseNotes(p) }},
		{ZoneFlags, func(p []byte) { hdr.Flags = readFlags(p) }},
		{ZoneTronca, func(p []byte) { hdr.Segments = readSegments(p) }},
		{ZoneImpedB, func(p []byte) { hdr.ImpedanceBegin = readImpedances(p) }},
		{ZoneImpedE, func(p []byte) { hdr.ImpedanceEnd = readImpedances(p) }},
		{ZoneEventA, func(p []byte) { hdr.EventsA = readEvents(p) }},
		{ZoneEventB, func(p []byte) { hdr.EventsB = readEvents(p) }},
		{ZoneTrigger, func(p []byte) { hdr.Markers = ParseMarkers(p) }},
	}
	for _, r := range readers {
		p, err := zones[r.zone].bytes(b)
		if err != nil {
			return nil, err
		}
		r.read(p)
	}

	return hdr, nil
}
