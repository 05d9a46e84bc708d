// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package cli_test

import (
	"testing"
	"time"

	"github.com/OpenPSG/trc/internal/cli"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type options struct {
	addr    string
	length  int
	real    bool
	epoch   time.Duration
	picks   []string
	level   zapcore.Level
	ranWith []string
}

func newCommand(t *testing.T, o *options) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{
		Use: "test",
		RunE: func(_ *cobra.Command, args []string) error {
			o.ranWith = args
			return nil
		},
	}
	err := cli.BindOptions(cli.NewViper("trctest"), cmd, []cli.Opt{
		cli.NewOpt(&o.addr, "addr", "localhost:5123", "address"),
		cli.NewOpt(&o.length, "len", 64, "packet length"),
		cli.NewOpt(&o.real, "realtime", true, "pace packets"),
		cli.NewOpt(&o.epoch, "epoch", 2*time.Second, "epoch duration"),
		cli.NewOpt(&o.picks, "picks", nil, "channels"),
		cli.NewOpt(&o.level, "log-level", zapcore.InfoLevel, "log level"),
	})
	require.NoError(t, err)
	return cmd
}

func TestBindOptions(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		var o options
		cmd := newCommand(t, &o)
		cmd.SetArgs([]string{})
		require.NoError(t, cmd.Execute())

		assert.Equal(t, "localhost:5123", o.addr)
		assert.Equal(t, 64, o.length)
		assert.True(t, o.real)
		assert.Equal(t, 2*time.Second, o.epoch)
		assert.Empty(t, o.picks)
		assert.Equal(t, zapcore.InfoLevel, o.level)
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("TRCTEST_ADDR", "0.0.0.0:6000")
		t.Setenv("TRCTEST_LEN", "128")
		t.Setenv("TRCTEST_LOG_LEVEL", "debug")

		var o options
		cmd := newCommand(t, &o)
		cmd.SetArgs([]string{})
		require.NoError(t, cmd.Execute())

		assert.Equal(t, "0.0.0.0:6000", o.addr)
		assert.Equal(t, 128, o.length)
		assert.Equal(t, zapcore.DebugLevel, o.level)
	})

	t.Run("Flags take precedence", func(t *testing.T) {
		t.Setenv("TRCTEST_ADDR", "0.0.0.0:6000")

		var o options
		cmd := newCommand(t, &o)
		cmd.SetArgs([]string{"--addr=127.0.0.1:7000", "--picks=Fp1-G2,C3-G2", "--realtime=false", "--log-level=warn", "file.TRC"})
		require.NoError(t, cmd.Execute())

		assert.Equal(t, "127.0.0.1:7000", o.addr)
		assert.Equal(t, []string{"Fp1-G2", "C3-G2"}, o.picks)
		assert.False(t, o.real)
		assert.Equal(t, zapcore.WarnLevel, o.level)
		assert.Equal(t, []string{"file.TRC"}, o.ranWith)
	})

	t.Run("Unsupported destination", func(t *testing.T) {
		var f float64
		err := cli.BindOptions(cli.NewViper("trctest"), &cobra.Command{Use: "test"}, []cli.Opt{
			cli.NewOpt(&f, "ratio", 1.0, "ratio"),
		})
		assert.Error(t, err)
	})
}

func TestLevelVar(t *testing.T) {
	newCommand := func(level *zapcore.Level) *cobra.Command {
		cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		cli.LevelVar(cmd.Flags(), level, "log-level", zapcore.ErrorLevel, "log level")
		return cmd
	}

	t.Run("Default", func(t *testing.T) {
		var level zapcore.Level
		cmd := newCommand(&level)
		assert.Equal(t, zapcore.ErrorLevel, level)
		assert.Equal(t, "error", cmd.Flags().Lookup("log-level").Value.String())
		assert.Equal(t, "level", cmd.Flags().Lookup("log-level").Value.Type())
	})

	t.Run("Set", func(t *testing.T) {
		var level zapcore.Level
		cmd := newCommand(&level)
		cmd.SetArgs([]string{"--log-level=WARN"})
		require.NoError(t, cmd.Execute())
		assert.Equal(t, zapcore.WarnLevel, level)
	})

	for _, s := range []string{"verbose", "fatal"} {
		t.Run("Rejects "+s, func(t *testing.T) {
			var level zapcore.Level
			cmd := newCommand(&level)
			cmd.SetArgs([]string{"--log-level=" + s})
			assert.Error(t, cmd.Execute())
			assert.Equal(t, zapcore.ErrorLevel, level)
		})
	}
}
