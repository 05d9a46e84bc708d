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
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenPSG/trc"
	"github.com/OpenPSG/trc/epoch"
	"github.com/OpenPSG/trc/internal/cli"
	"github.com/OpenPSG/trc/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	addr        string
	metricsAddr string
	picks       []string
	epoch       time.Duration
	overlap     time.Duration
	keepRaw     bool
	useVolt     bool
	skipCheck   bool
}

func newServeCommand(a *app) (*cobra.Command, error) {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive and decode live streams from the acquisition system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx, o)
		},
	}
	err := cli.BindOptions(a.v, cmd, []cli.Opt{
		cli.NewOpt(&o.addr, "addr", stream.DefaultAddr, "address to listen on for streams"),
		cli.NewOpt(&o.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, disabled when empty"),
		cli.NewOpt(&o.picks, "picks", nil, "channels to decode, in output order (default all)"),
		cli.NewOpt(&o.epoch, "epoch", time.Duration(0), "epoch duration, windowing is disabled when zero"),
		cli.NewOpt(&o.overlap, "overlap", time.Duration(0), "overlap between consecutive epochs"),
		cli.NewOpt(&o.keepRaw, "keep-raw", false, "keep integer codes instead of calibrated values"),
		cli.NewOpt(&o.useVolt, "use-volt", false, "convert calibrated values to volts"),
		cli.NewOpt(&o.skipCheck, "skip-check", false, "skip the marker channel integrity check"),
	})
	return cmd, err
}

func (a *app) runServe(ctx context.Context, o serveOptions) error {
	srv := stream.NewServer(stream.SessionConfig{
		Picks: o.picks,
		Decode: trc.DecodeOptions{
			KeepRaw:   o.keepRaw,
			UseVolt:   o.useVolt,
			SkipCheck: o.skipCheck,
		},
		Epoch: epoch.Config{
			Duration: o.epoch,
			Overlap:  o.overlap,
		},
	})
	srv.WithLogger(a.log)
	srv.NewListener = func(conn net.Conn) stream.Listener {
		log := a.log.With(zap.Stringer("remote", conn.RemoteAddr()))
		return stream.Listener{
			Epoch: func(w *epoch.Window) {
				log.Info("Epoch ready",
					zap.Int("index", w.Index),
					zap.Int64("start", w.Start),
					zap.Strings("channels", w.Channels))
			},
			Note: func(n trc.Note) {
				log.Info("Note received", zap.Uint32("sample", n.Sample), zap.String("text", n.Text))
			},
			Marker: func(m trc.Marker) {
				log.Info("Marker received", zap.Uint32("sample", m.Sample), zap.String("value", m.Value()))
			},
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx, o.addr)
	})

	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(srv.Metrics.PrometheusCollectors()...)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: o.metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			a.log.Info("Serving metrics", zap.String("addr", o.metricsAddr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
