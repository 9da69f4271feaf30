// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldEncodeDecode(t *testing.T) {
	f := Field{Name: "BC", Offset: 3, Width: 3}

	assert.Equal(t, uint8(0x38), f.Mask())
	assert.Equal(t, uint8(0x5), f.Decode(0xEF))
	assert.Equal(t, uint8(0xC7|0x10), f.Encode(0xFF, 0x2))

	// bits beyond the width are dropped
	assert.Equal(t, uint8(0x08), f.Encode(0x00, 0x9))
}

func TestRegisterFieldWritePreservesOtherBits(t *testing.T) {
	sim := newSimTarget()
	sim.mem[0x50] = 0xA5

	r, err := NewRegister(sim, "TEST", 0x50, Field{"LOW", 0, 2}, Field{"MID", 2, 3}, Field{"TOP", 7, 1})
	require.NoError(t, err)

	for _, f := range r.Fields() {
		for v := uint8(0); v < 1<<f.Width; v++ {
			before := sim.mem[0x50]

			require.NoError(t, r.WriteField(f.Name, v))

			got, err := r.ReadField(f.Name)
			require.NoError(t, err)
			assert.Equal(t, v, got, "field %s", f.Name)

			assert.Equal(t, before&^f.Mask(), sim.mem[0x50]&^f.Mask(), "bits outside %s changed", f.Name)
		}
	}
}

func TestRegisterRejectsBadLayouts(t *testing.T) {
	sim := newSimTarget()

	_, err := NewRegister(sim, "OVERLAP", 0x10, Field{"A", 0, 3}, Field{"B", 2, 2})
	assert.Error(t, err)

	_, err = NewRegister(sim, "WIDE", 0x10, Field{"A", 6, 3})
	assert.Error(t, err)

	_, err = NewRegister(sim, "EMPTY", 0x10, Field{"A", 0, 0})
	assert.Error(t, err)

	_, err = NewRegister(sim, "DUP", 0x10, Field{"A", 0, 1}, Field{"A", 1, 1})
	assert.Error(t, err)

	assert.Panics(t, func() {
		NewRegisterGroup(sim, "G").AddRegister("OVERLAP", 0x10, Field{"A", 0, 3}, Field{"B", 2, 2})
	})
}

func TestRegisterUnknownField(t *testing.T) {
	sim := newSimTarget()
	r, err := NewRegister(sim, "TEST", 0x10, Field{"A", 0, 1})
	require.NoError(t, err)

	_, err = r.ReadField("B")
	assert.Equal(t, ErrUnknownField, errors.Cause(err))

	err = r.WriteField("B", 1)
	assert.Equal(t, ErrUnknownField, errors.Cause(err))
	assert.Empty(t, sim.writes)

	err = r.WriteBit(8, 1)
	assert.Equal(t, ErrUnknownField, errors.Cause(err))
}

func TestRegisterBitShorthand(t *testing.T) {
	sim := newSimTarget()
	r, err := NewRegister(sim, "ODR", 0x500F)
	require.NoError(t, err)

	require.NoError(t, r.WriteBit(3, 1))
	require.NoError(t, r.WriteBit(7, 1))
	assert.Equal(t, uint8(0x88), sim.mem[0x500F])

	v, err := r.ReadBit(3)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v)

	require.NoError(t, r.WriteBit(3, 0))
	assert.Equal(t, uint8(0x80), sim.mem[0x500F])
}

func TestRegisterReadFailure(t *testing.T) {
	sim := newSimTarget()
	sim.failRead = newDeviceError(ErrorNack, "nack", nil)

	r, err := NewRegister(sim, "TEST", 0x10, Field{"A", 0, 1})
	require.NoError(t, err)

	err = r.WriteField("A", 1)
	require.Error(t, err)

	deviceErr, ok := errors.Cause(err).(*DeviceError)
	require.True(t, ok)
	assert.Equal(t, ErrorNack, deviceErr.Code)
	assert.Empty(t, sim.writes)
}

func TestRegisterStatus(t *testing.T) {
	sim := newSimTarget()
	sim.mem[0x7F99] = 0x28

	r, err := NewRegister(sim, "DM_CSR2", 0x7F99, Field{"SWBKE", 5, 1}, Field{"STALL", 3, 1}, Field{"FLUSH", 0, 1})
	require.NoError(t, err)

	status, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, "DM_CSR2 (*7f99=28)\n  FLUSH=0\n  STALL=1\n  SWBKE=1", status)
}

func TestWideRegisterBigEndian(t *testing.T) {
	sim := newSimTarget()

	r, err := NewWideRegister(sim, "BK1", 0x7F90, 3)
	require.NoError(t, err)

	require.NoError(t, r.SetValue(0x012345))
	assert.Equal(t, []byte{0x01, 0x23, 0x45}, sim.peek(0x7F90, 3))

	// one transaction for the whole value
	require.Len(t, sim.writes, 1)

	sim.load(0x7F90, []byte{0xAB, 0xCD, 0xEF})
	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xABCDEF), v)

	_, err = NewWideRegister(sim, "BAD", 0x10, 4)
	assert.Error(t, err)
}

func TestRegisterGroup(t *testing.T) {
	sim := newSimTarget()
	g := NewRegisterGroup(sim, "G")

	g.AddRegister("B", 0x11, Field{"X", 0, 1})
	g.AddWideRegister("W", 0x12, 2)
	g.AddRegister("A", 0x10)

	assert.Equal(t, []string{"A", "B", "W"}, g.Names())
	assert.NotNil(t, g.Register("A"))
	assert.Nil(t, g.Register("W"))
	assert.NotNil(t, g.Wide("W"))
	assert.Nil(t, g.Register("missing"))

	_, ok := g.Get("W")
	assert.True(t, ok)

	sim.load(0x10, []byte{0x01, 0x01, 0xBE, 0xEF})

	status, err := g.Status()
	require.NoError(t, err)
	assert.Equal(t, "[G]\nA (*10=01)\nB (*11=01)\n  X=1\nW (*12=beef)", status)
}
