// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package stream

import (
	"errors"
	"fmt"
	"slices"

	"github.com/OpenPSG/trc"
	"github.com/OpenPSG/trc/epoch"
	"go.uber.org/zap"
)

// ErrNoHeader is returned when sample data arrives before any header packet.
var ErrNoHeader = errors.New("sample data before header")

// SessionConfig configures the decoding of one stream.
type SessionConfig struct {
	// Picks selects and orders the decoded channels. Empty means all channels.
	Picks []string
	// Decode holds the per-packet decode flags. Its Channels field, when set,
	// overrides Picks for each packet.
	Decode trc.DecodeOptions
	// Epoch enables windowing when Epoch.Duration is positive. Empty
	// Epoch.Channels defaults to the decoded channels; set, they must be
	// among them.
	Epoch epoch.Config
}

// Listener receives the output of a session. Nil funcs are skipped; they are
// called synchronously from Handle.
type Listener struct {
	Header func(hdr *trc.Header)
	Chunk  func(chunk *trc.SampleChunk, ok bool)
	Epoch  func(w *epoch.Window)
	Note   func(n trc.Note)
	Marker func(m trc.Marker)
}

// Session decodes the packets of a single stream. A Session is not safe for
// concurrent use.
type Session struct {
	cfg      SessionConfig
	listener Listener
	logger   *zap.Logger
	metrics  *Metrics

	dec     *trc.Decoder
	buf     *epoch.Buffer
	notes   []trc.Note
	markers []trc.Marker
}

// NewSession creates a session waiting for its header packet.
func NewSession(cfg SessionConfig, l Listener) *Session {
	return &Session{
		cfg:      cfg,
		listener: l,
		logger:   zap.NewNop(),
	}
}

// WithLogger sets the logger for the session.
func (s *Session) WithLogger(log *zap.Logger) {
	s.logger = log
	if s.dec != nil {
		s.dec.WithLogger(log)
	}
}

// WithMetrics sets the counters updated by the session.
func (s *Session) WithMetrics(m *Metrics) {
	s.metrics = m
}

// Header returns the current header, or nil before the first header packet.
func (s *Session) Header() *trc.Header {
	if s.dec == nil {
		return nil
	}
	return s.dec.Header()
}

// Buffer returns the epoch buffer, or nil when windowing is disabled or no header was received.
func (s *Session) Buffer() *epoch.Buffer {
	return s.buf
}

// Notes returns every note received so far, from the header and note packets.
func (s *Session) Notes() []trc.Note {
	return s.notes
}

// Markers returns every marker received so far, from the header and marker packets.
func (s *Session) Markers() []trc.Marker {
	return s.markers
}

// Handle decodes one packet and forwards the result to the listener.
func (s *Session) Handle(p Packet) error {
	if s.metrics != nil {
		s.metrics.Packets.WithLabelValues(p.Type().String()).Inc()
	}

	var err error
	switch p := p.(type) {
	case HeaderPacket:
		err = s.handleHeader(p)
	case SampleDataPacket:
		err = s.handleSamples(p)
	case NotePacket:
		for _, n := range p.Notes() {
			s.notes = append(s.notes, n)
			if s.listener.Note != nil {
				s.listener.Note(n)
			}
		}
	case MarkerPacket:
		for _, m := range p.Markers() {
			s.markers = append(s.markers, m)
			if s.listener.Marker != nil {
				s.listener.Marker(m)
			}
		}
	case UnknownPacket:
		s.logger.Warn("Skipping packet of unknown type",
			zap.Uint16("type", uint16(p.Code)),
			zap.Int("length", len(p.Raw)))
	}

	if err != nil && s.metrics != nil {
		s.metrics.DecodeErrors.Inc()
	}
	return err
}

// handleHeader replaces the decoder. The epoch buffer is reset explicitly
// and rebuilt for the new header, since the channel layout may have changed.
func (s *Session) handleHeader(p HeaderPacket) error {
	hdr, err := p.Header()
	if err != nil {
		return fmt.Errorf("error decoding header packet: %w", err)
	}

	dec, err := trc.NewDecoder(hdr, s.cfg.Picks)
	if err != nil {
		return err
	}
	dec.WithLogger(s.logger)

	// Channels present in every decoded chunk.
	decoded := s.cfg.Decode.Channels
	if len(decoded) == 0 {
		decoded = dec.Picks()
	} else if _, err := hdr.Pick(decoded); err != nil {
		return err
	}

	var buf *epoch.Buffer
	if s.cfg.Epoch.Duration > 0 {
		cfg := s.cfg.Epoch
		if len(cfg.Channels) == 0 {
			cfg.Channels = decoded
		}
		for _, name := range cfg.Channels {
			if !slices.Contains(decoded, name) {
				return fmt.Errorf("error configuring epochs: %w",
					&trc.UnknownChannelError{Name: name, Available: decoded})
			}
		}
		if buf, err = epoch.New(hdr, cfg); err != nil {
			return err
		}
	}

	if s.buf != nil {
		s.logger.Info("New header received, resetting epoch buffer")
		s.buf.Reset()
	}

	s.dec = dec
	s.buf = buf
	s.notes = append([]trc.Note(nil), hdr.Notes...)
	s.markers = append([]trc.Marker(nil), hdr.Markers...)

	s.logger.Info("Received header",
		zap.Int("channels", hdr.ChannelCount),
		zap.Int("sampling_rate", hdr.SamplingRate),
		zap.Int("bytes_per_sample", hdr.BytesPerSample),
		zap.Strings("picks", dec.Picks()))

	if s.listener.Header != nil {
		s.listener.Header(hdr)
	}
	return nil
}

func (s *Session) handleSamples(p SampleDataPacket) error {
	if s.dec == nil {
		return ErrNoHeader
	}

	chunk, ok, err := s.dec.Decode(p.Raw, s.cfg.Decode)
	if err != nil {
		return fmt.Errorf("error decoding sample packet: %w", err)
	}
	if !ok && s.metrics != nil {
		s.metrics.IntegrityFailures.Inc()
	}
	if s.listener.Chunk != nil {
		s.listener.Chunk(chunk, ok)
	}

	if s.buf == nil {
		return nil
	}
	windows, err := s.buf.Update(chunk)
	if err != nil {
		return fmt.Errorf("error updating epoch buffer: %w", err)
	}
	for _, w := range windows {
		s.logger.Debug("Epoch completed",
			zap.Int("index", w.Index),
			zap.Int64("start", w.Start),
			zap.Int("samples", s.buf.WindowLength()))
		if s.metrics != nil {
			s.metrics.Epochs.Inc()
		}
		if s.listener.Epoch != nil {
			s.listener.Epoch(w)
		}
	}
	return nil
}
