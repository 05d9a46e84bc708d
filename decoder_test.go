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
	"encoding/binary"
	"testing"

	"github.com/OpenPSG/trc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// smallHeader has two EEG channels and one marker channel.
func smallHeader() *trc.Header {
	return &trc.Header{
		ChannelCount:   3,
		SamplingRate:   256,
		BytesPerSample: 2,
		Electrodes: []trc.Electrode{
			eegElectrode("Fp1"),
			markerElectrode(1),
			eegElectrode("Fp2"),
		},
	}
}

func TestDecode(t *testing.T) {
	hdr := smallHeader()
	dec, err := trc.NewDecoder(hdr, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fp1-G2", "MKR1+-MKR1-", "Fp2-G2"}, dec.Picks())
	assert.Same(t, hdr, dec.Header())

	b := interleave([][]uint16{
		{32768, 32769, 32767},
		{markerCode, markerCode, markerCode},
		{0, 65535, 33792},
	})

	t.Run("Calibrated", func(t *testing.T) {
		chunk, ok, err := dec.Decode(b, trc.DecodeOptions{})
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, []string{"Fp1-G2", "MKR1+-MKR1-", "Fp2-G2"}, chunk.Channels)
		assert.Equal(t, 3, chunk.Samples())
		assert.Equal(t, [][]float64{
			{0, step, -step},
			{50, 50, 50},
			{-3200, 32767 * step, 1024 * step},
		}, chunk.Data)
	})

	t.Run("Raw", func(t *testing.T) {
		chunk, ok, err := dec.Decode(b, trc.DecodeOptions{KeepRaw: true})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, [][]float64{
			{32768, 32769, 32767},
			{markerCode, markerCode, markerCode},
			{0, 65535, 33792},
		}, chunk.Data)
	})

	t.Run("Raw and calibrated agree", func(t *testing.T) {
		raw, _, err := dec.Decode(b, trc.DecodeOptions{KeepRaw: true})
		require.NoError(t, err)
		cal, _, err := dec.Decode(b, trc.DecodeOptions{})
		require.NoError(t, err)

		for ch, e := range hdr.Electrodes {
			for i, code := range raw.Data[ch] {
				assert.Equal(t, e.Calibration.Physical(int32(code)), cal.Data[ch][i])
			}
		}
	})

	t.Run("Channel order follows picks", func(t *testing.T) {
		chunk, ok, err := dec.Decode(b, trc.DecodeOptions{Channels: []string{"Fp2-G2", "Fp1-G2"}, KeepRaw: true})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"Fp2-G2", "Fp1-G2"}, chunk.Channels)
		assert.Equal(t, [][]float64{
			{0, 65535, 33792},
			{32768, 32769, 32767},
		}, chunk.Data)
	})

	t.Run("Empty input", func(t *testing.T) {
		chunk, ok, err := dec.Decode(nil, trc.DecodeOptions{})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, chunk.Samples())
		assert.Len(t, chunk.Data, 3)
	})

	t.Run("Trailing bytes dropped", func(t *testing.T) {
		chunk, _, err := dec.Decode(append(b, 1, 2, 3, 4, 5), trc.DecodeOptions{KeepRaw: true})
		require.NoError(t, err)
		assert.Equal(t, 3, chunk.Samples())
	})
}

func TestDecoderPicks(t *testing.T) {
	hdr := smallHeader()
	dec, err := trc.NewDecoder(hdr, []string{"Fp2-G2", "Fp1-G2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Fp2-G2", "Fp1-G2"}, dec.Picks())

	b := interleave([][]uint16{{1, 2}, {markerCode, markerCode}, {3, 4}})
	chunk, ok, err := dec.Decode(b, trc.DecodeOptions{KeepRaw: true})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, [][]float64{{3, 4}, {1, 2}}, chunk.Data)

	t.Run("Unknown channel", func(t *testing.T) {
		_, err := trc.NewDecoder(hdr, []string{"Fp1-G2", "O1-G2"})
		require.ErrorIs(t, err, trc.ErrUnknownChannel)

		var unknown *trc.UnknownChannelError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "O1-G2", unknown.Name)
		assert.Equal(t, []string{"Fp1-G2", "MKR1+-MKR1-", "Fp2-G2"}, unknown.Available)

		_, _, err = dec.Decode(b, trc.DecodeOptions{Channels: []string{"O1-G2"}})
		assert.ErrorIs(t, err, trc.ErrUnknownChannel)
	})
}

func TestNewDecoderInvalidHeader(t *testing.T) {
	tests := []struct {
		name   string
		modify func(hdr *trc.Header)
	}{
		{"No channels", func(hdr *trc.Header) {
			hdr.ChannelCount = 0
			hdr.Electrodes = nil
		}},
		{"Fewer electrodes than channels", func(hdr *trc.Header) { hdr.Electrodes = hdr.Electrodes[:2] }},
		{"More electrodes than channels", func(hdr *trc.Header) { hdr.ChannelCount = 2 }},
		{"Logical max below min", func(hdr *trc.Header) {
			hdr.Electrodes[2].Calibration.LogicalMin = 5
			hdr.Electrodes[2].Calibration.LogicalMax = 4
		}},
		{"Empty logical range", func(hdr *trc.Header) {
			hdr.Electrodes[0].Calibration.LogicalMax = hdr.Electrodes[0].Calibration.LogicalMin
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := smallHeader()
			tt.modify(hdr)

			dec, err := trc.NewDecoder(hdr, nil)
			assert.ErrorIs(t, err, trc.ErrMalformedHeader)
			assert.Nil(t, dec)
		})
	}
}

func TestDecodeIntegrityCheck(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	dec, err := trc.NewDecoder(smallHeader(), []string{"Fp1-G2"})
	require.NoError(t, err)
	dec.WithLogger(zap.New(core))

	good := interleave([][]uint16{{1, 2, 3}, {markerCode, markerCode, markerCode}, {4, 5, 6}})
	bad := interleave([][]uint16{{1, 2, 3}, {markerCode, markerCode + 1, markerCode}, {4, 5, 6}})

	t.Run("Marker at reference level", func(t *testing.T) {
		chunk, ok, err := dec.Decode(good, trc.DecodeOptions{})
		require.NoError(t, err)
		assert.True(t, ok)
		// The marker channel is decoded for the check but not returned.
		assert.Equal(t, []string{"Fp1-G2"}, chunk.Channels)
		assert.Len(t, chunk.Data, 1)
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("Marker off reference level", func(t *testing.T) {
		chunk, ok, err := dec.Decode(bad, trc.DecodeOptions{})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"Fp1-G2"}, chunk.Channels)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	})

	t.Run("Negative reference level", func(t *testing.T) {
		neg := interleave([][]uint16{{1}, {32768 - 512}, {4}})
		_, ok, err := dec.Decode(neg, trc.DecodeOptions{})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Checked with native calibration", func(t *testing.T) {
		_, ok, err := dec.Decode(good, trc.DecodeOptions{KeepRaw: true})
		require.NoError(t, err)
		assert.True(t, ok)

		_, ok, err = dec.Decode(good, trc.DecodeOptions{UseVolt: true})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Skipped", func(t *testing.T) {
		_, ok, err := dec.Decode(bad, trc.DecodeOptions{SkipCheck: true})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Requested marker channel kept", func(t *testing.T) {
		chunk, ok, err := dec.Decode(bad, trc.DecodeOptions{Channels: []string{"MKR1+-MKR1-"}, KeepRaw: true})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, [][]float64{{markerCode, markerCode + 1, markerCode}}, chunk.Data)
	})
}

func TestDecodeVolts(t *testing.T) {
	units := []struct {
		unit  trc.Unit
		ratio float64
	}{
		{trc.UnitNanovolt, 1e-9},
		{trc.UnitMicrovolt, 1e-6},
		{trc.UnitMillivolt, 1e-3},
		{trc.UnitVolt, 1},
	}

	for _, u := range units {
		t.Run(u.unit.String(), func(t *testing.T) {
			e := eegElectrode("Fp1")
			e.Calibration.Unit = u.unit
			hdr := &trc.Header{ChannelCount: 1, SamplingRate: 256, BytesPerSample: 2, Electrodes: []trc.Electrode{e}}

			dec, err := trc.NewDecoder(hdr, nil)
			require.NoError(t, err)

			b := interleave([][]uint16{{32768 + 1024, 32768 - 2048}})
			chunk, _, err := dec.Decode(b, trc.DecodeOptions{UseVolt: true})
			require.NoError(t, err)
			assert.InDelta(t, 100*u.ratio, chunk.Data[0][0], 1e-12*u.ratio)
			assert.InDelta(t, -200*u.ratio, chunk.Data[0][1], 1e-12*u.ratio)
		})
	}

	for _, unit := range []trc.Unit{trc.UnitPercent, trc.UnitBPM, trc.UnitDimensionless, trc.Unit(7)} {
		t.Run("Unconvertible "+unit.String(), func(t *testing.T) {
			e := eegElectrode("SpO2")
			e.Calibration.Unit = unit
			hdr := &trc.Header{ChannelCount: 1, SamplingRate: 256, BytesPerSample: 2, Electrodes: []trc.Electrode{e}}

			dec, err := trc.NewDecoder(hdr, nil)
			require.NoError(t, err)

			b := interleave([][]uint16{{32768}})
			_, _, err = dec.Decode(b, trc.DecodeOptions{UseVolt: true})
			assert.ErrorIs(t, err, trc.ErrUnconvertibleUnit)

			chunk, _, err := dec.Decode(b, trc.DecodeOptions{})
			require.NoError(t, err)
			assert.Equal(t, 0.0, chunk.Data[0][0])
		})
	}
}

func TestDecodeSampleWidth(t *testing.T) {
	t.Run("Four bytes", func(t *testing.T) {
		e := eegElectrode("Fp1")
		e.Calibration = trc.Calibration{LogicalMin: -1 << 20, LogicalMax: 1<<20 - 1, PhysicalMin: -1 << 20, PhysicalMax: 1<<20 - 1, Unit: trc.UnitMicrovolt}
		hdr := &trc.Header{ChannelCount: 2, SamplingRate: 256, BytesPerSample: 4, Electrodes: []trc.Electrode{e, eegElectrode("Fp2")}}

		dec, err := trc.NewDecoder(hdr, nil)
		require.NoError(t, err)

		var b []byte
		for _, v := range []int32{-5, 70000, 12, 1} {
			b = binary.LittleEndian.AppendUint32(b, uint32(v))
		}
		chunk, ok, err := dec.Decode(b, trc.DecodeOptions{KeepRaw: true})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, [][]float64{{-5, 12}, {70000, 1}}, chunk.Data)
	})

	t.Run("One byte decodes as two", func(t *testing.T) {
		hdr := &trc.Header{ChannelCount: 1, SamplingRate: 256, BytesPerSample: 1, Electrodes: []trc.Electrode{eegElectrode("Fp1")}}

		dec, err := trc.NewDecoder(hdr, nil)
		require.NoError(t, err)

		chunk, _, err := dec.Decode(interleave([][]uint16{{300, 40000}}), trc.DecodeOptions{KeepRaw: true})
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{300, 40000}}, chunk.Data)
	})

	t.Run("Unsupported", func(t *testing.T) {
		for _, bps := range []int{0, 3, 8} {
			hdr := &trc.Header{ChannelCount: 1, SamplingRate: 256, BytesPerSample: bps, Electrodes: []trc.Electrode{eegElectrode("Fp1")}}

			dec, err := trc.NewDecoder(hdr, nil)
			require.NoError(t, err)

			_, _, err = dec.Decode(make([]byte, 12), trc.DecodeOptions{})
			assert.ErrorIs(t, err, trc.ErrUnsupportedSampleWidth)

			_, err = trc.SampleWidth(bps)
			assert.ErrorIs(t, err, trc.ErrUnsupportedSampleWidth)
		}
	})
}
