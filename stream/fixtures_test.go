// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package stream_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/trc"
	"github.com/stretchr/testify/require"
)

const (
	recordingRate    = 256
	recordingSamples = 1000
)

var recordingChannels = []string{"Fp1-G2", "Fp2-G2", "MKR+-MKR-"}

func recordingHeader() trc.Header {
	cal := trc.Calibration{
		LogicalMin:    0,
		LogicalMax:    65535,
		LogicalGround: 32768,
		PhysicalMin:   -3200,
		PhysicalMax:   3200,
		Unit:          trc.UnitMicrovolt,
	}
	mkr := cal
	mkr.Unit = trc.UnitMillivolt

	return trc.Header{
		StartTime:      time.Date(2023, time.November, 6, 14, 35, 6, 0, time.UTC),
		SamplingRate:   recordingRate,
		BytesPerSample: 2,
		Electrodes: []trc.Electrode{
			{Positive: "Fp1", Negative: "G2", Calibration: cal},
			{Positive: "Fp2", Negative: "G2", Calibration: cal},
			{Positive: "MKR+", Negative: "MKR-", Calibration: mkr},
		},
	}
}

// sampleValue is the physical value of EEG channel ch at sample t.
func sampleValue(ch, t int) float64 {
	return float64((t+ch*37)%200-100) * 0.09765625
}

func recordingSignals(start, n int) [][]float64 {
	signals := make([][]float64, len(recordingChannels))
	for ch := range signals {
		signals[ch] = make([]float64, n)
		for t := range signals[ch] {
			if ch == 2 {
				signals[ch][t] = 50
			} else {
				signals[ch][t] = sampleValue(ch, start+t)
			}
		}
	}
	return signals
}

// openRecording writes a short recording with a note and two markers and opens it.
func openRecording(t *testing.T) *trc.Reader {
	t.Helper()
	return openAnnotatedRecording(t, nil)
}

// openAnnotatedRecording is openRecording with further annotations added by annotate.
func openAnnotatedRecording(t *testing.T, annotate func(tw *trc.Writer)) *trc.Reader {
	t.Helper()

	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.TRC"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	tw, err := trc.Create(f, recordingHeader())
	require.NoError(t, err)
	require.NoError(t, tw.WriteRecord(recordingSignals(0, recordingSamples)))
	require.NoError(t, tw.AddNote(64, "TCP connection failed"))
	require.NoError(t, tw.AddMarker(700, 4))
	require.NoError(t, tw.AddMarker(100, 17))
	if annotate != nil {
		annotate(tw)
	}
	require.NoError(t, tw.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	r, err := trc.Open(f)
	require.NoError(t, err)
	return r
}
