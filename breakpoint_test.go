// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakpointModeTable(t *testing.T) {
	modes := BreakpointModes()
	require.Len(t, modes, 24)

	names := make(map[string]bool)
	patterns := make(map[uint8]bool)

	for _, mode := range modes {
		assert.False(t, names[mode.Name], "duplicate name %q", mode.Name)
		assert.False(t, patterns[mode.Bits()], "duplicate pattern for %q", mode.Name)

		names[mode.Name] = true
		patterns[mode.Bits()] = true
	}

	// the table is handed out as a copy
	modes[0].Name = "changed"
	assert.Equal(t, BreakpointDisabled, BreakpointModes()[0].Name)
}

func TestBreakpointBitsMostSignificantFirst(t *testing.T) {
	mode, err := LookupBreakpointMode("Instruction fetch on @=BK1 then on @=BK2")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x10), mode.Bits())

	mode, err = LookupBreakpointMode("Data Write on @=BK1 and Data=BK2L")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), mode.Bits())
}

func TestSetBreakpointAllModes(t *testing.T) {
	for _, mode := range BreakpointModes() {
		sim := newSimTarget()
		// WDGOFF and a stray low bit must survive
		sim.mem[dmCr1Address] = 0x81

		d := NewDebugger(sim)
		require.NoError(t, d.SetBreakpoint(mode.Name, 0x008123, 0x00ABCD))

		assert.Equal(t, mode.Bits(), (sim.mem[dmCr1Address]>>1)&0x1f, mode.Name)
		assert.Equal(t, uint8(0x81), sim.mem[dmCr1Address]&0x81, mode.Name)
		assert.Equal(t, []byte{0x00, 0x81, 0x23}, sim.peek(dmBkr1Address, 3))
		assert.Equal(t, []byte{0x00, 0xAB, 0xCD}, sim.peek(dmBkr2Address, 3))

		got, bk1, bk2, ok, err := d.Breakpoint()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, mode, got)
		assert.Equal(t, uint32(0x8123), bk1)
		assert.Equal(t, uint32(0xABCD), bk2)
	}
}

func TestClearBreakpoint(t *testing.T) {
	sim := newSimTarget()
	d := NewDebugger(sim)

	require.NoError(t, d.SetBreakpoint("Data R/W on @=BK1 or @=BK2", 0x1234, 0x5678))
	require.NoError(t, d.ClearBreakpoint())

	mode, bk1, bk2, ok, err := d.Breakpoint()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, BreakpointDisabled, mode.Name)
	assert.Zero(t, bk1)
	assert.Zero(t, bk2)
}

func TestUnknownBreakpointMode(t *testing.T) {
	sim := newSimTarget()
	d := NewDebugger(sim)

	err := d.SetBreakpoint("Instruction fetch on a full moon", 0, 0)
	require.Error(t, err)

	modeErr, ok := err.(*UnknownModeError)
	require.True(t, ok)
	assert.Equal(t, "Instruction fetch on a full moon", modeErr.Name)
	assert.Empty(t, sim.writes)
}

func TestDecodeUnnamedPattern(t *testing.T) {
	// BC=011 is not documented
	_, ok := DecodeBreakpointMode(0x0C)
	assert.False(t, ok)

	sim := newSimTarget()
	sim.mem[dmCr1Address] = 0x0C << 1

	_, _, _, ok, err := NewDebugger(sim).Breakpoint()
	require.NoError(t, err)
	assert.False(t, ok)
}
