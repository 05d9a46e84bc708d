// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package trc_test

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/OpenPSG/trc"
	"github.com/stretchr/testify/require"
)

// 6400 / 65536: every multiple of the step is exact in float64.
const step = 0.09765625

// markerCode is the code that calibrates to the 50 mV marker reference level.
const markerCode = 32768 + 512

var eegCalibration = trc.Calibration{
	LogicalMin:    0,
	LogicalMax:    65535,
	LogicalGround: 32768,
	PhysicalMin:   -3200,
	PhysicalMax:   3200,
	Unit:          trc.UnitMicrovolt,
}

var startTime = time.Date(2023, time.November, 6, 14, 35, 6, 0, time.UTC)

func eegElectrode(positive string) trc.Electrode {
	return trc.Electrode{
		Positive:    positive,
		Negative:    "G2",
		Status:      1,
		Calibration: eegCalibration,
	}
}

func markerElectrode(i int) trc.Electrode {
	cal := eegCalibration
	cal.Unit = trc.UnitMillivolt
	n := strconv.Itoa(i)
	return trc.Electrode{
		Positive:    "MKR" + n + "+",
		Negative:    "MKR" + n + "-",
		Status:      1,
		Calibration: cal,
	}
}

// fixtureHeader returns the 14 channel layout of a bench recording: ten EEG
// channels followed by four marker reference channels.
func fixtureHeader() trc.Header {
	hdr := trc.Header{
		Title:           "Bench",
		Laboratory:      "OpenPSG",
		Surname:         "Doe",
		Name:            "Jane",
		StartTime:       startTime,
		AcquisitionUnit: 65,
		FileType:        74,
		SamplingRate:    2048,
		BytesPerSample:  2,
	}
	for i := 1; i <= 10; i++ {
		hdr.Electrodes = append(hdr.Electrodes, eegElectrode("x"+strconv.Itoa(i)))
	}
	for i := 1; i <= 4; i++ {
		hdr.Electrodes = append(hdr.Electrodes, markerElectrode(i))
	}
	return hdr
}

// eegValue is the physical value of EEG channel ch at sample t.
func eegValue(ch, t int) float64 {
	return float64((t*7+ch*13)%2000-1000) * step
}

// fixtureSignals returns samples [start, start+n) of every channel of fixtureHeader.
func fixtureSignals(start, n int) [][]float64 {
	signals := make([][]float64, 14)
	for ch := range signals {
		signals[ch] = make([]float64, n)
		for t := range signals[ch] {
			if ch < 10 {
				signals[ch][t] = eegValue(ch, start+t)
			} else {
				signals[ch][t] = 50
			}
		}
	}
	return signals
}

// createFile writes a recording to a temporary file, calling write between
// Create and Close, and returns the file rewound.
func createFile(t *testing.T, hdr trc.Header, write func(tw *trc.Writer)) *os.File {
	t.Helper()

	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.TRC"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	tw, err := trc.Create(f, hdr)
	require.NoError(t, err)
	if write != nil {
		write(tw)
	}
	require.NoError(t, tw.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	return f
}

// openRecording writes a recording and opens it for reading.
func openRecording(t *testing.T, hdr trc.Header, write func(tw *trc.Writer)) *trc.Reader {
	t.Helper()

	r, err := trc.Open(createFile(t, hdr, write))
	require.NoError(t, err)
	return r
}

// rawHeader returns the encoded header prefix of hdr.
func rawHeader(t *testing.T, hdr trc.Header) []byte {
	t.Helper()
	return openRecording(t, hdr, nil).RawHeader()
}

// interleave encodes 16-bit codes, codes[channel][sample], in stored order.
func interleave(codes [][]uint16) []byte {
	var b []byte
	for t := range codes[0] {
		for ch := range codes {
			b = append(b, byte(codes[ch][t]), byte(codes[ch][t]>>8))
		}
	}
	return b
}
