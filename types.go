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
	"math"
	"strconv"
	"strings"
	"time"
)

// HeaderType identifies the revision of the header layout.
type HeaderType int8

const (
	// HeaderTypeSystem98 is the only header layout this package decodes.
	HeaderTypeSystem98 HeaderType = 4
)

var headerTypeNames = map[HeaderType]string{
	0: `Micromed "System 1" Header type`,
	1: `Micromed "System 1" Header type`,
	2: `Micromed "System 2" Header type`,
	3: `Micromed "System98" Header type`,
	4: `Micromed "System98" Header type`,
}

func (t HeaderType) String() string {
	if s, ok := headerTypeNames[t]; ok {
		return s
	}
	return "unknown header type " + strconv.Itoa(int(t))
}

// Header represents a decoded recording header.
type Header struct {
	Title           string          // Free text title of the recording
	Laboratory      string          // Laboratory name
	Surname         string          // Patient surname
	Name            string          // Patient name
	BirthDate       time.Time       // Patient date of birth, zero if not set
	StartTime       time.Time       // Start of the recording (no time zone is stored)
	AcquisitionUnit AcquisitionUnit // Headbox / interface that acquired the data
	FileType        FileType        // Montage class of the recording
	DataOffset      int             // Byte offset where sample data begins
	ChannelCount    int             // Number of stored channels
	Multiplexer     uint16          // Multiplexer code
	SamplingRate    int             // Minimum sampling rate across channels (Hz)
	BytesPerSample  int             // Declared bytes per sample: 1, 2 or 4
	Compression     uint16          // 0 if the data is not compressed
	Montages        uint16          // Number of specific montages
	HeaderType      HeaderType      // Header layout revision
	Order           []uint16        // Storage order: original electrode index of each stored channel
	Electrodes      []Electrode     // One per stored channel, in storage order
	NoteOffset      int             // Byte offset where the NOTE zone begins
	Notes           []Note          // Operator notes
	Markers         []Marker        // Digital trigger markers
	Flags           []Flag          // Flagged sample ranges
	Segments        []Segment       // Reduction (TRONCA) segments
	ImpedanceBegin  []Impedance     // Impedances measured at the start of the recording
	ImpedanceEnd    []Impedance     // Impedances measured at the end of the recording
	EventsA         []Event         // Events of type A
	EventsB         []Event         // Events of type B
}

// ChannelNames returns the stored channel names ("positive-negative") in storage order.
func (h *Header) ChannelNames() []string {
	names := make([]string, len(h.Electrodes))
	for i, e := range h.Electrodes {
		names[i] = e.Name()
	}
	return names
}

// Pick returns, for each requested channel name, its index in storage order.
// The result order follows names, so it determines the row order of every
// decoded chunk. An empty names list selects every channel in storage order.
func (h *Header) Pick(names []string) ([]int, error) {
	all := h.ChannelNames()
	if len(names) == 0 {
		idx := make([]int, len(all))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}

	lookup := make(map[string]int, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		lookup[all[i]] = i
	}

	idx := make([]int, len(names))
	for i, name := range names {
		j, ok := lookup[name]
		if !ok {
			return nil, &UnknownChannelError{Name: name, Available: all}
		}
		idx[i] = j
	}
	return idx, nil
}

// Duration returns the duration covered by the given number of samples.
func (h *Header) Duration(samples int) time.Duration {
	if h.SamplingRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(h.SamplingRate)
}

// Electrode describes one stored channel.
type Electrode struct {
	Positive        string      // Positive input label
	Negative        string      // Negative input label
	Status          uint8       // 1 if the electrode was acquired
	Reference       uint8       // Reference type
	Calibration     Calibration // Conversion from codes to physical values
	HighPassLimit   uint16      // High-pass filter limit
	HighPassType    uint16      // High-pass filter type
	LowPassLimit    uint16      // Low-pass filter limit
	LowPassType     uint16      // Low-pass filter type
	RateCoefficient uint16      // Sampling rate multiplier relative to the minimum rate
	Description     string      // Free text description
}

// Name returns the channel name as "positive-negative".
func (e Electrode) Name() string {
	return e.Positive + "-" + e.Negative
}

// IsMarker reports whether the channel is a marker reference channel.
// Marker channels carry a constant 50 mV reference level and are used to
// detect misaligned sample streams.
func (e Electrode) IsMarker() bool {
	return strings.Contains(e.Name(), markerChannelTag)
}

const markerChannelTag = "MKR"

// Calibration holds the full min/max conversion parameters of a channel.
type Calibration struct {
	LogicalMin    int32 // Minimum integer code
	LogicalMax    int32 // Maximum integer code
	LogicalGround int32 // Integer code that maps to zero
	PhysicalMin   int32 // Physical value of LogicalMin
	PhysicalMax   int32 // Physical value of LogicalMax
	Unit          Unit  // Physical unit
}

// Factor returns the physical size of one code step.
func (c Calibration) Factor() float64 {
	return (float64(c.PhysicalMax) - float64(c.PhysicalMin)) / (float64(c.LogicalMax) - float64(c.LogicalMin) + 1)
}

// Physical converts an integer code to a physical value.
func (c Calibration) Physical(code int32) float64 {
	return (float64(code) - float64(c.LogicalGround)) * c.Factor()
}

// Code converts a physical value back to the nearest code within the logical range.
func (c Calibration) Code(physical float64) int32 {
	v := physical/c.Factor() + float64(c.LogicalGround)
	switch {
	case v <= float64(c.LogicalMin):
		return c.LogicalMin
	case v >= float64(c.LogicalMax):
		return c.LogicalMax
	}
	return int32(math.Round(v))
}

// Legacy projects the calibration onto the factor-only form used by older
// header revisions. LogicalMin and the physical range collapse into Factor;
// the projection is one way.
func (c Calibration) Legacy() LegacyCalibration {
	return LegacyCalibration{
		Factor:        c.Factor(),
		LogicalGround: c.LogicalGround,
		Unit:          c.Unit,
	}
}

// LegacyCalibration is the factor-only calibration form.
type LegacyCalibration struct {
	Factor        float64
	LogicalGround int32
	Unit          Unit
}

// Physical converts an integer code to a physical value.
func (c LegacyCalibration) Physical(code int32) float64 {
	return (float64(code) - float64(c.LogicalGround)) * c.Factor
}

// Unit is the physical unit code of a channel.
type Unit int16

const (
	UnitNanovolt      Unit = -1
	UnitMicrovolt     Unit = 0
	UnitMillivolt     Unit = 1
	UnitVolt          Unit = 2
	UnitPercent       Unit = 100
	UnitBPM           Unit = 101
	UnitDimensionless Unit = 102
)

var unitNames = map[Unit]string{
	UnitNanovolt:      "nV",
	UnitMicrovolt:     "µV",
	UnitMillivolt:     "mV",
	UnitVolt:          "V",
	UnitPercent:       "%",
	UnitBPM:           "bpm",
	UnitDimensionless: "dimensionless",
}

var voltRatios = map[Unit]float64{
	UnitNanovolt:  1e-9,
	UnitMicrovolt: 1e-6,
	UnitMillivolt: 1e-3,
	UnitVolt:      1,
}

func (u Unit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return "unit(" + strconv.Itoa(int(u)) + ")"
}

// VoltRatio returns the factor that converts a value in this unit to volts.
func (u Unit) VoltRatio() (float64, bool) {
	r, ok := voltRatios[u]
	return r, ok
}

// AcquisitionUnit identifies the acquisition hardware.
type AcquisitionUnit int16

var acquisitionUnitNames = map[AcquisitionUnit]string{
	0:  "BQ124 - 24 channels headbox, Internal Interface",
	2:  "MS40 - Holter recorder",
	6:  "BQ132S - 32 channels headbox, Internal Interface",
	7:  "BQ124 - 24 channels headbox, BQ CARD Interface",
	8:  "SAM32 - 32 channels headbox, BQ CARD Interface",
	9:  "SAM25 - 25 channels headbox, BQ CARD Interface",
	10: "BQ132S R - 32 channels reverse headbox, Internal Interface",
	11: "SAM32 R - 32 channels reverse headbox, BQ CARD Interface",
	12: "SAM25 R - 25 channels reverse headbox, BQ CARD Interface",
	13: "SAM32 - 32 channels headbox, Internal Interface",
	14: "SAM25 - 25 channels headbox, Internal Interface",
	15: "SAM32 R - 32 channels reverse headbox, Internal Interface",
	16: "SAM25 R - 25 channels reverse headbox, Internal Interface",
	17: "SD - 32 channels headbox with jackbox, SD CARD Interface -- PCI Internal Interface",
	18: "SD128 - 128 channels headbox, SD CARD Interface -- PCI Internal Interface",
	19: "SD96 - 96 channels headbox, SD CARD Interface -- PCI Internal Interface",
	20: "SD64 - 64 channels headbox, SD CARD Interface -- PCI Internal Interface",
	21: "SD128c - 128 channels headbox with jackbox, SD CARD Interface -- PCI Internal Interface",
	22: "SD64c - 64 channels headbox with jackbox, SD CARD Interface -- PCI Internal Interface",
	23: "BQ132S - 32 channels headbox, PCI Internal Interface",
	24: "BQ132S R - 32 channels reverse headbox, PCI Internal Interface",
}

// String returns the hardware description, or the decimal code when unknown.
func (u AcquisitionUnit) String() string {
	if s, ok := acquisitionUnitNames[u]; ok {
		return s
	}
	return strconv.Itoa(int(u))
}

// FileType identifies the montage class of a recording.
type FileType uint16

var fileTypeNames = map[FileType]string{
	40:  "C128 C.R., 128 EEG (headbox SD128 only)",
	42:  "C84P C.R., 84 EEG, 44 poly (headbox SD128 only)",
	44:  "C84 C.R., 84 EEG, 4 reference signals (named MKR,MKRB,MKRC,MKRD) (headbox SD128 only)",
	46:  "C96 C.R., 96 EEG (headbox SD128 -- SD96 -- BQ123S(r))",
	48:  "C63P C.R., 63 EEG, 33 poly",
	50:  "C63 C.R., 63 EEG, 3 reference signals (named MKR,MKRB,MKRC)",
	52:  "C64 C.R., 64 EEG",
	54:  "C42P C.R., 42 EEG, 22 poly",
	56:  "C42 C.R., 42 EEG, 2 reference signals (named MKR,MKRB)",
	58:  "C32 C.R., 32 EEG",
	60:  "C21P C.R., 21 EEG, 11 poly",
	62:  "C21 C.R., 21 EEG, 1 reference signal (named MKR)",
	64:  "C19P C.R., 19 EEG, variable poly",
	66:  "C19 C.R., 19 EEG, 1 reference signal (named MKR)",
	68:  "C12 C.R., 12 EEG",
	70:  "C8P C.R., 8 EEG, variable poly",
	72:  "C8 C.R., 8 EEG",
	74:  "CFRE C.R., variable EEG, variable poly",
	76:  "C25P C.R., 25 EEG (21 standard, 4 poly transformed to EEG channels), 7 poly -- headbox BQ132S(r) only",
	78:  "C27P C.R., 27 EEG (21 standard, 6 poly transformed to EEG channels), 5 poly -- headbox BQ132S(r) only",
	80:  "C24P C.R., 24 EEG (21 standard, 3 poly transformed to EEG channels), 8 poly -- headbox SAM32(r) only",
	82:  "C25P C.R., 25 EEG (21 standard, 4 poly transformed to EEG channels), 7 poly -- headbox SD with headbox JB 21P",
	84:  "C27P C.R., 27 EEG (21 standard, 6 poly transformed to EEG channels), 5 poly -- headbox SD with headbox JB 21P",
	86:  "C31P C.R., 27 EEG (21 standard, 10 poly transformed to EEG channels), 1 poly -- headbox SD with headbox JB 21P6",
	100: "C26P C.R., 26 EEG, 6 poly (headbox SD, SD64c, SD128c with headbox JB Mini)",
	101: "C16P C.R., 16 EEG, 16 poly (headbox SD with headbox JB M12)",
	102: "C12P C.R., 12 EEG, 20 poly (headbox SD with headbox JB M12)",
	103: "32P 32 poly (headbox SD, SD64c, SD128c with headbox JB Bip)",
	120: "C48P C.R., 48 EEG, 16 poly (headbox SD64)",
	121: "C56P C.R., 56 EEG, 8 poly (headbox SD64)",
	122: "C24P C.R., 24 EEG, 8 poly (headbox SD64)",
	140: "C52P C.R., 52 EEG, 12 poly (headbox SD64c, SD128c with 2 headboxes JB Mini)",
	141: "64P 64 poly (headbox SD64c, SD128c with 2 headboxes JB Bip)",
	160: "C88P C.R., 88 EEG, 8 poly (headbox SD96)",
	161: "C80P C.R., 80 EEG, 16 poly (headbox SD96)",
	162: "C72P C.R., 72 EEG, 24 poly (headbox SD96)",
	180: "C120P C.R., 120 EEG, 8 poly (headbox SD128)",
	181: "C112P C.R., 112 EEG, 16 poly (headbox SD128)",
	182: "C104P C.R., 104 EEG, 24 poly (headbox SD128)",
	183: "C96P C.R., 96 EEG, 32 poly (headbox SD128)",
	200: "C122P C.R., 122 EEG, 6 poly (headbox SD128c with 4 headboxes JB Mini)",
	201: "C116P C.R., 116 EEG, 12 poly (headbox SD128c with 4 headboxes JB Mini)",
	202: "C110P C.R., 110 EEG, 18 poly (headbox SD128c with 4 headboxes JB Mini)",
	203: "C104P C.R., 104 EEG, 24 poly (headbox SD128c with 4 headboxes JB Mini)",
	204: "128P 128 poly (headbox SD128c with 4 headboxes JB Bip)",
	205: "96P 96 poly (headbox SD128c with 3 headboxes JB Bip)",
}

func (t FileType) String() string {
	if s, ok := fileTypeNames[t]; ok {
		return s
	}
	return "unknown headbox"
}

// Note is an operator comment attached to a sample.
type Note struct {
	Sample uint32
	Text   string
}

// Marker is a digital trigger received at a sample.
type Marker struct {
	Sample uint32
	Code   uint16
}

// Value returns the textual representation of the trigger code.
func (m Marker) Value() string {
	return strconv.Itoa(int(m.Code))
}

// Flag marks a range of samples.
type Flag struct {
	Begin uint32
	End   uint32
}

// Segment is a reduction segment: a stored sample and its time position.
type Segment struct {
	TimeInSamples uint32
	Sample        uint32
}

// Impedance holds the impedance of the positive and negative inputs of an electrode.
type Impedance struct {
	Positive uint8
	Negative uint8
}

// Event is a coded event spanning a sample range.
type Event struct {
	Code  uint32
	Begin uint32
	End   uint32
}
