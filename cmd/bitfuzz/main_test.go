// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const miniExperiments = `
family: mini
device: dev1
experiments:
  - key: {kind: value, tile: T, bel: B, attr: INIT, value: "0"}
    bits: []
  - key: {kind: value, tile: T, bel: B, attr: INIT, value: "1"}
    bits: ["+0:11:0"]
  - key: {kind: value, tile: T, bel: B, attr: MODE, value: A}
    bits: ["+0:10:0"]
  - key: {kind: value, tile: T, bel: B, attr: MODE, value: B}
    bits: ["+0:10:1"]
`

const miniPlan = `
family: mini
steps:
  - {op: bool, tile: T, bel: B, attr: INIT, values: ["0", "1"]}
  - {op: enum, tile: T, bel: B, attr: MODE, values: [A, B], default: NONE}
`

// brokenPlan reads an experiment that does not exist.
const brokenPlan = `
family: mini
steps:
  - {op: bit, tile: T, bel: B, attr: EN, value: "1"}
`

type cli struct {
	t       *testing.T
	dir     string
	dataDir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	dir := t.TempDir()
	return &cli{t: t, dir: dir, dataDir: filepath.Join(dir, "db")}
}

func (c *cli) file(name, body string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	base := []string{
		"--config", filepath.Join(c.dir, "none.yaml"),
		"--data-dir", c.dataDir,
		"--log-level", "error",
	}
	code := run(context.Background(), append(base, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestDecodeThenDump(t *testing.T) {
	c := newCLI(t)
	p := c.file("mini.plan.yaml", miniPlan)
	e := c.file("mini.dev1.yaml", miniExperiments)

	code, out, stderr := c.run("decode", "--plan", p, "--experiments", e)
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(out, "mini\tdev1\t2\t4\t0\t"), out)
	assert.Contains(t, out, "\tok\n")

	code, out, stderr = c.run("dump", "--family", "mini")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "family: mini")
	assert.Contains(t, out, "attr: INIT")
	assert.Contains(t, out, "kind: bool")
	assert.Contains(t, out, "kind: enum")

	code, out, _ = c.run("dump", "--family", "mini", "--format", "json")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"attr": "MODE"`)

	code, out, _ = c.run("families")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "mini\tdev1\t2 items")
}

func TestDecode_MergesDevices(t *testing.T) {
	c := newCLI(t)
	p := c.file("mini.plan.yaml", miniPlan)
	e1 := c.file("mini.dev1.yaml", miniExperiments)
	e2 := c.file("mini.dev2.yaml", strings.Replace(miniExperiments, "device: dev1", "device: dev2", 1))

	code, _, stderr := c.run("decode", "-p", p, "-e", e1, "-p", p, "-e", e2)
	require.Equal(t, 0, code, stderr)

	code, out, _ := c.run("families")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "mini\tdev1,dev2\t2 items")
}

func TestDecode_FamilyFailure(t *testing.T) {
	c := newCLI(t)
	p := c.file("broken.plan.yaml", brokenPlan)
	e := c.file("mini.dev1.yaml", miniExperiments)

	code, out, stderr := c.run("decode", "--plan", p, "--experiments", e)
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "\tfailed\t")
	assert.Contains(t, stderr, "families failed")

	code, _, stderr = c.run("dump", "--family", "mini")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "family not found")
}

func TestDecode_StrictUnconsumed(t *testing.T) {
	c := newCLI(t)
	onlyInit := `
family: mini
steps:
  - {op: bool, tile: T, bel: B, attr: INIT, values: ["0", "1"]}
`
	p := c.file("init.plan.yaml", onlyInit)
	e := c.file("mini.dev1.yaml", miniExperiments)

	code, out, stderr := c.run("decode", "--plan", p, "--experiments", e, "--no-save")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "mini\tdev1\t1\t4\t2\t")
	assert.Contains(t, stderr, "WARN: 2 experiments never consumed")

	code, _, stderr = c.run("decode", "--plan", p, "--experiments", e, "--strict", "--no-save")
	assert.Equal(t, 2, code)
	assert.NotContains(t, stderr, "WARN:")

	code, out, _ = c.run("families")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "no families stored")
}

func TestDecode_BadArgs(t *testing.T) {
	c := newCLI(t)
	p := c.file("mini.plan.yaml", miniPlan)
	e := c.file("mini.dev1.yaml", miniExperiments)

	tests := []struct {
		name string
		args []string
	}{
		{"unpaired", []string{"decode", "-p", p, "-p", p, "-e", e}},
		{"missing plan file", []string{"decode", "-p", filepath.Join(c.dir, "nope.yaml"), "-e", e}},
		{"no flags", []string{"decode"}},
		{"bad output mode", []string{"--output", "loud", "decode", "-p", p, "-e", e}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := c.run(tt.args...)
			assert.Equal(t, 1, code)
		})
	}
}

func TestCheck(t *testing.T) {
	c := newCLI(t)
	p := c.file("mini.plan.yaml", miniPlan)
	e := c.file("mini.dev1.yaml", miniExperiments)
	other := c.file("other.yaml", strings.Replace(miniExperiments, "family: mini", "family: other", 1))
	bad := c.file("bad.plan.yaml", "family: mini\nsteps:\n  - {op: enum, tile: T}\n")

	code, out, stderr := c.run("check", "--plan", p, "--experiments", e)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "OK: "+p+": 2 steps for family mini")
	assert.Contains(t, out, "4 experiments for dev1")

	code, _, stderr = c.run("check", "--plan", p, "--experiments", other)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "family")

	code, _, stderr = c.run("check", "--plan", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "step 0")
}

func TestWriteSnapshot_UnknownFormat(t *testing.T) {
	c := newCLI(t)
	p := c.file("mini.plan.yaml", miniPlan)
	e := c.file("mini.dev1.yaml", miniExperiments)
	code, _, _ := c.run("decode", "-p", p, "-e", e)
	require.Equal(t, 0, code)

	code, _, stderr := c.run("dump", "--family", "mini", "--format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown format")

	code, _, stderr = c.run("dump", "--family", "../mini")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid family")
}

func TestJoinDevice(t *testing.T) {
	assert.Equal(t, "a", joinDevice("", "a"))
	assert.Equal(t, "a,b", joinDevice("a", "b"))
	assert.Equal(t, "a,b", joinDevice("a,b", "a"))
}
