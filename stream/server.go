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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultAddr is the address the acquisition system streams to by default.
const DefaultAddr = "localhost:5123"

// Server accepts stream connections and decodes each with its own Session.
type Server struct {
	Config SessionConfig

	// NewListener returns the listener for a new connection. Nil drops the output.
	NewListener func(conn net.Conn) Listener

	Logger  *zap.Logger
	Metrics *Metrics
}

// NewServer returns a server that decodes streams with cfg.
func NewServer(cfg SessionConfig) *Server {
	return &Server{
		Config:  cfg,
		Logger:  zap.NewNop(),
		Metrics: NewMetrics(),
	}
}

// WithLogger sets the logger for the server.
func (s *Server) WithLogger(log *zap.Logger) {
	s.Logger = log.With(zap.String("service", "stream"))
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or accepting fails. It
// closes ln and waits for every connection to finish before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Logger.Info("Listening for streams", zap.Stringer("addr", ln.Addr()))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("error accepting connection: %w", err)
			}
			g.Go(func() error {
				s.handleConnection(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	s.Logger.Info("Stopped listening for streams")
	return err
}

// handleConnection services an individual connection until it closes or fails.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log := s.Logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	log.Info("Connection opened")
	if s.Metrics != nil {
		s.Metrics.Connections.Inc()
		defer s.Metrics.Connections.Dec()
	}

	var l Listener
	if s.NewListener != nil {
		l = s.NewListener(conn)
	}
	session := NewSession(s.Config, l)
	session.WithLogger(log)
	session.WithMetrics(s.Metrics)

	r := bufio.NewReader(conn)
	for {
		p, err := ReadPacket(r)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				log.Info("Connection closed")
			} else {
				log.Error("Failed to read packet, closing connection", zap.Error(err))
			}
			return
		}

		if err := session.Handle(p); err != nil {
			log.Error("Failed to handle packet, closing connection",
				zap.Stringer("type", p.Type()),
				zap.Error(err))
			return
		}
	}
}
