// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"fmt"

	"github.com/juju/errors"
)

type DeviceErrorCode int

// codes reported by the esp-stlink firmware (negated on the wire)
const (
	ErrorReadBitTimeout   DeviceErrorCode = -1
	ErrorInvalidTargetId  DeviceErrorCode = -2
	ErrorParity           DeviceErrorCode = -3
	ErrorNack             DeviceErrorCode = -4
	ErrorSyncTimeout1     DeviceErrorCode = -5
	ErrorSyncTimeout2     DeviceErrorCode = -6
	ErrorUnknownCommand   DeviceErrorCode = -0xFF
	ErrorProtocolMismatch DeviceErrorCode = -0x100
)

// codes produced by the st-link usb transport
const (
	ErrorWait DeviceErrorCode = -0x200
	ErrorFail DeviceErrorCode = -0x201
)

var deviceErrorNames = map[DeviceErrorCode]string{
	ErrorReadBitTimeout:   "read bit timeout",
	ErrorInvalidTargetId:  "invalid target id",
	ErrorParity:           "parity error",
	ErrorNack:             "target sent nack",
	ErrorSyncTimeout1:     "sync timeout waiting for target response",
	ErrorSyncTimeout2:     "sync timeout waiting for sync pulse end",
	ErrorUnknownCommand:   "unknown command",
	ErrorProtocolMismatch: "unexpected response from probe",
	ErrorWait:             "probe is busy",
	ErrorFail:             "probe transaction failed",
}

func (c DeviceErrorCode) String() string {
	if name, ok := deviceErrorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("device error %d", int(c))
}

// DeviceError is returned whenever a transaction with the probe or the target
// failed. Data carries up to 256 bytes of diagnostic payload from the probe.
type DeviceError struct {
	Code    DeviceErrorCode
	Message string
	Data    []byte
}

const maxDeviceErrorData = 256

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error (%d): %s (data=% x)", int(e.Code), e.Message, e.Data)
}

func newDeviceError(code DeviceErrorCode, msg string, data []byte) error {
	if len(data) > maxDeviceErrorData {
		data = data[:maxDeviceErrorData]
	}
	return &DeviceError{Code: code, Message: msg, Data: append([]byte(nil), data...)}
}

// UnlockFailedError is returned when the unlock status bit did not assert
// after writing the key sequence.
type UnlockFailedError struct {
	Region string
}

func (e *UnlockFailedError) Error() string {
	return fmt.Sprintf("%s area not unlocked", e.Region)
}

// WriteProtectedError is returned when a page write did not finish and the
// controller reports an attempt to write a protected page.
type WriteProtectedError struct {
	Addr  uint32
	Block []byte
}

func (e *WriteProtectedError) Error() string {
	return fmt.Sprintf("flash failed, page @%04x is write-protected", e.Addr)
}

// FlashTimeoutError is returned when the end of programming flag did not
// assert within the polling bound.
type FlashTimeoutError struct {
	Addr       uint32
	Iterations int
}

func (e *FlashTimeoutError) Error() string {
	return fmt.Sprintf("flash @%04x did not finish after %d polls", e.Addr, e.Iterations)
}

// MalformedRecordError describes a hex line that could not be used.
type MalformedRecordError struct {
	Line   int
	Reason string
}

// Line is zero when the error is not tied to a single input line.
func (e *MalformedRecordError) Error() string {
	if e.Line == 0 {
		return e.Reason
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

type UnknownModeError struct {
	Name string
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("unknown breakpoint mode %q", e.Name)
}

type PageAlignmentError struct {
	Addr   uint32
	Length int
}

func (e *PageAlignmentError) Error() string {
	return fmt.Sprintf("page write @%04x with %d bytes: addr must be on a %d byte boundary and block exactly %d bytes long",
		e.Addr, e.Length, PageSize, PageSize)
}

var (
	ErrProgramPending   = errors.New("FLASH_CR2.PRG is still set or FLASH_NCR2.PRG is still unset")
	ErrUnknownField     = errors.New("unknown register field")
	ErrTransferTooLarge = errors.New("transfer exceeds maximum probe transaction size")
	ErrInvalidLength    = errors.New("negative read length")
)

/**
  Converts a SWIM status code held in the first byte of a READSTATUS response
  to a goswim error.
*/
func (h *StLink) usbErrorCheck(ctx *transferCtx) error {

	data := ctx.DataBytes()

	if len(data) == 0 {
		return newDeviceError(ErrorProtocolMismatch, "empty swim status response", nil)
	}

	switch data[0] {
	case swimErrorOk:
		return nil

	case swimErrorBusy:
		return newDeviceError(ErrorWait, "swim is busy", data)

	default:
		return newDeviceError(ErrorFail, fmt.Sprintf("unknown/unexpected STLINK status code 0x%x", data[0]), data)
	}
}
