// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// Levels lists the log levels accepted on the command line.
var Levels = []zapcore.Level{
	zapcore.DebugLevel,
	zapcore.InfoLevel,
	zapcore.WarnLevel,
	zapcore.ErrorLevel,
}

// levelFlag stores a log level flag in the level it points to.
type levelFlag struct {
	level *zapcore.Level
}

func (f levelFlag) String() string {
	if f.level == nil {
		return ""
	}
	return f.level.String()
}

func (f levelFlag) Set(s string) error {
	level, err := zapcore.ParseLevel(s)
	if err != nil || !slices.Contains(Levels, level) {
		return fmt.Errorf("unknown log level %q, expected one of %v", s, Levels)
	}
	*f.level = level
	return nil
}

func (levelFlag) Type() string {
	return "level"
}

// LevelVar defines a log level flag on fs, stored in p and initialized to value.
func LevelVar(fs *pflag.FlagSet, p *zapcore.Level, name string, value zapcore.Level, usage string) {
	*p = value
	fs.Var(levelFlag{level: p}, name, usage)
}
