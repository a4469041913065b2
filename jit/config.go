// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jit

import (
	"strings"

	"github.com/xyproto/env/v2"
	"tlog.app/go/errors"

	"github.com/go-highway/tlang/codegen"
	"github.com/go-highway/tlang/internal/cpuinfo"
)

// Config controls code generation and the native toolchain.
type Config struct {
	// CacheDir receives generated sources and compiled libraries.
	CacheDir string

	// Compiler is the C++ compiler executable.
	Compiler string

	// ExtraFlags are appended to every compile command.
	ExtraFlags []string

	// Formatter is run on generated sources. Empty disables it; the
	// environment spells that "none".
	Formatter string

	// SIMDWidth is the float32 lane count. 0 detects the host width.
	SIMDWidth int

	Mode codegen.Mode

	// Pack logs SLP load groups of every compiled graph.
	Pack bool

	// NoSIMD forces the narrowest profile.
	NoSIMD bool
}

// DefaultConfig returns the configuration used without any environment.
func DefaultConfig() Config {
	return Config{
		CacheDir:  "_tlang_cache",
		Compiler:  "g++",
		Formatter: "clang-format",
		Mode:      codegen.ModeVector,
	}
}

// ConfigFromEnv reads TLANG_* variables on top of the defaults. The
// environment is reloaded first, so variables set after startup are seen.
func ConfigFromEnv() (Config, error) {
	env.Load()

	def := DefaultConfig()

	cfg := Config{
		CacheDir:   env.Str("TLANG_CACHE_DIR", def.CacheDir),
		Compiler:   env.Str("TLANG_CXX", def.Compiler),
		ExtraFlags: strings.Fields(env.Str("TLANG_CXXFLAGS")),
		Formatter:  env.Str("TLANG_FORMATTER", def.Formatter),
		SIMDWidth:  env.Int("TLANG_SIMD_WIDTH", def.SIMDWidth),
		Pack:       env.Bool("TLANG_SLP"),
		NoSIMD:     env.Bool("TLANG_NO_SIMD"),
	}

	if cfg.Formatter == "none" {
		cfg.Formatter = ""
	}

	mode, err := codegen.ParseMode(env.Str("TLANG_MODE", def.Mode.String()))
	if err != nil {
		return Config{}, errors.Wrap(err, "TLANG_MODE")
	}

	cfg.Mode = mode

	if cfg.SIMDWidth < 0 {
		return Config{}, errors.New("TLANG_SIMD_WIDTH: negative width %d", cfg.SIMDWidth)
	}

	return cfg, nil
}

// Width resolves the lane count to generate for.
func (c Config) Width() int {
	switch {
	case c.NoSIMD:
		return 4
	case c.SIMDWidth > 0:
		return c.SIMDWidth
	default:
		return cpuinfo.Width()
	}
}
