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
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/OpenPSG/trc"
	"github.com/OpenPSG/trc/internal/cli"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type infoOptions struct {
	annotations bool
}

func newInfoCommand(a *app) (*cobra.Command, error) {
	var o infoOptions
	cmd := &cobra.Command{
		Use:   "info FILE",
		Short: "Print the header of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInfo(cmd.OutOrStdout(), args[0], o)
		},
	}
	err := cli.BindOptions(a.v, cmd, []cli.Opt{
		cli.NewOpt(&o.annotations, "annotations", false, "list every note and marker"),
	})
	return cmd, err
}

func (a *app) runInfo(w io.Writer, path string, o infoOptions) (err error) {
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
	a.log.Debug("Opened recording", zap.String("path", path), zap.Int("samples", r.SampleCount()))

	return printInfo(w, r, o)
}

func printInfo(w io.Writer, r *trc.Reader, o infoOptions) error {
	hdr := r.Header()
	samples := r.SampleCount()
	width, _ := trc.SampleWidth(hdr.BytesPerSample)
	dataSize := uint64(samples) * uint64(width) * uint64(hdr.ChannelCount)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Title:\t%s\n", hdr.Title)
	fmt.Fprintf(tw, "Laboratory:\t%s\n", hdr.Laboratory)
	fmt.Fprintf(tw, "Patient:\t%s %s\n", hdr.Name, hdr.Surname)
	if !hdr.BirthDate.IsZero() {
		fmt.Fprintf(tw, "Birth date:\t%s\n", hdr.BirthDate.Format("2006-01-02"))
	}
	fmt.Fprintf(tw, "Start time:\t%s\n", hdr.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(tw, "Header type:\t%s\n", hdr.HeaderType)
	fmt.Fprintf(tw, "Acquisition unit:\t%s\n", hdr.AcquisitionUnit)
	fmt.Fprintf(tw, "File type:\t%s\n", hdr.FileType)
	fmt.Fprintf(tw, "Channels:\t%d\n", hdr.ChannelCount)
	fmt.Fprintf(tw, "Sampling rate:\t%d Hz\n", hdr.SamplingRate)
	fmt.Fprintf(tw, "Bytes per sample:\t%d\n", hdr.BytesPerSample)
	fmt.Fprintf(tw, "Samples:\t%s\n", humanize.Comma(int64(samples)))
	fmt.Fprintf(tw, "Duration:\t%s\n", hdr.Duration(samples))
	fmt.Fprintf(tw, "Data size:\t%s\n", humanize.Bytes(dataSize))
	fmt.Fprintf(tw, "Notes:\t%d\n", len(hdr.Notes))
	fmt.Fprintf(tw, "Markers:\t%d\n", len(hdr.Markers))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tUNIT\tLOGICAL\tPHYSICAL\tGROUND\tDESCRIPTION")
	for i, e := range hdr.Electrodes {
		c := e.Calibration
		fmt.Fprintf(tw, "%d\t%s\t%s\t[%d, %d]\t[%d, %d]\t%d\t%s\n",
			i, e.Name(), c.Unit, c.LogicalMin, c.LogicalMax, c.PhysicalMin, c.PhysicalMax, c.LogicalGround, e.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !o.annotations {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSAMPLE\tTIME\tVALUE")
	for _, n := range hdr.Notes {
		fmt.Fprintf(tw, "note\t%d\t%s\t%s\n", n.Sample, hdr.Duration(int(n.Sample)), n.Text)
	}
	for _, m := range hdr.Markers {
		fmt.Fprintf(tw, "marker\t%d\t%s\t%s\n", m.Sample, hdr.Duration(int(m.Sample)), m.Value())
	}
	return tw.Flush()
}
