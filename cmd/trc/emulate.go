// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenPSG/trc"
	"github.com/OpenPSG/trc/internal/cli"
	"github.com/OpenPSG/trc/stream"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type emulateOptions struct {
	addr         string
	packetLength int
	realTime     bool
}

func newEmulateCommand(a *app) (*cobra.Command, error) {
	var o emulateOptions
	cmd := &cobra.Command{
		Use:   "emulate FILE",
		Short: "Stream a recording to a listening decoder as the acquisition system would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runEmulate(ctx, args[0], o)
		},
	}
	err := cli.BindOptions(a.v, cmd, []cli.Opt{
		cli.NewOpt(&o.addr, "addr", stream.DefaultAddr, "address of the decoder"),
		cli.NewOpt(&o.packetLength, "len", stream.DefaultPacketLength, "samples per data packet"),
		cli.NewOpt(&o.realTime, "realtime", true, "pace packets at the recording's sampling rate"),
	})
	return cmd, err
}

func (a *app) runEmulate(ctx context.Context, path string, o emulateOptions) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	r, err := trc.Open(f)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}

	em, err := stream.NewEmulator(r, o.packetLength, o.realTime)
	if err != nil {
		return err
	}
	em.WithLogger(a.log)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", o.addr, err)
	}
	defer func() {
		err = multierr.Append(err, conn.Close())
	}()

	a.log.Info("Connected", zap.String("addr", o.addr), zap.String("path", path))
	return em.Run(ctx, conn)
}
