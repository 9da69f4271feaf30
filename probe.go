// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/juju/errors"
)

// MaxTransfer is the largest number of bytes a single probe transaction may
// carry.
const MaxTransfer = 254

// Probe is a connection to a target through a SWIM capable debug probe. All
// register, flash and debug access goes through it. A Probe is owned by one
// session and is not safe for concurrent use.
type Probe interface {
	ReadByteAt(addr uint32) (byte, error)
	ReadBytes(addr uint32, length int) ([]byte, error)
	WriteByteAt(addr uint32, value byte) error
	WriteBytes(addr uint32, data []byte) error
	Close() error
}

type ResetLine uint8

const (
	ResetRelease ResetLine = 0 // drive NRST high
	ResetAssert  ResetLine = 1 // drive NRST low
	ResetFloat   ResetLine = 2 // configure NRST as input
)

// Controller is implemented by probes which can drive the reset line and
// sequence the SWIM activation themselves.
type Controller interface {
	Reset(line ResetLine) error
	SwimEntry() error
	SoftReset() error
}

// LineController is implemented by probes which can change the SWIM line
// speed and resynchronise it.
type LineController interface {
	SetSwimSpeed(high bool) error
	Resync() error
}

// ReadWide reads size bytes starting at addr and returns them as one
// big endian unsigned value.
func ReadWide(p Probe, addr uint32, size int) (uint32, error) {
	data, err := p.ReadBytes(addr, size)
	if err != nil {
		return 0, errors.Trace(err)
	}

	var value uint32
	for _, b := range data {
		value = value<<8 | uint32(b)
	}
	return value, nil
}

// WriteWide writes value as size bytes, most significant byte first.
func WriteWide(p Probe, addr uint32, size int, value uint32) error {
	buffer := make([]byte, size)
	uint32ToBigEndian(buffer, value)

	return errors.Trace(p.WriteBytes(addr, buffer))
}

// ReadRange reads an arbitrary number of bytes by splitting the range into
// transactions of at most chunk bytes.
func ReadRange(p Probe, addr uint32, length int, chunk int) ([]byte, error) {
	if chunk <= 0 || chunk > MaxTransfer {
		chunk = MaxTransfer
	}
	if length < 0 {
		return nil, errors.Annotatef(ErrInvalidLength, "%d bytes", length)
	}

	result := make([]byte, 0, length)

	for length > 0 {
		n := chunk
		if length < n {
			n = length
		}

		data, err := p.ReadBytes(addr, n)
		if err != nil {
			return nil, errors.Annotatef(err, "read @%04x", addr)
		}

		result = append(result, data...)
		addr += uint32(n)
		length -= n
	}

	return result, nil
}

func checkTransferSize(length int) error {
	if length <= 0 || length > MaxTransfer {
		return errors.Annotatef(ErrTransferTooLarge, "%d bytes", length)
	}
	return nil
}
