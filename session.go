// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"io"
	"time"

	"github.com/juju/errors"
)

// SAFE_MASK and SWIM_DM: keep the debug module usable and allow access to
// all registers
const swimCsrDebugAccess = 0xA0

const (
	resetSettleTime = time.Millisecond

	// chunk size used for memory dumps
	ReadChunkSize = 0x80
)

var (
	ErrNoController     = errors.New("probe cannot drive reset or swim entry")
	ErrNoLineController = errors.New("probe cannot change swim line speed or resync")
	ErrNoHighSpeed      = errors.New("target does not support high speed swim")
)

// Session bundles the register views of one attached target. It owns the
// probe exclusively until Close is called.
type Session struct {
	probe Probe

	CPU        *CPU
	Debugger   *Debugger
	Flash      *Flash
	Options    *Options
	Programmer *Programmer
}

func NewSession(probe Probe) *Session {
	s := &Session{probe: probe}

	s.CPU = NewCPU(probe)
	s.Debugger = NewDebugger(probe)
	s.Flash = NewFlash(probe)
	s.Options = NewOptions(probe, s.Flash)
	s.Programmer = NewProgrammer(probe, s.Flash)

	return s
}

func (s *Session) Probe() Probe {
	return s.probe
}

func (s *Session) lineController() (LineController, error) {
	l, ok := s.probe.(LineController)
	if !ok {
		return nil, errors.Trace(ErrNoLineController)
	}
	return l, nil
}

func (s *Session) controller() (Controller, error) {
	c, ok := s.probe.(Controller)
	if !ok {
		return nil, errors.Trace(ErrNoController)
	}
	return c, nil
}

type InitOptions struct {
	SwimEntry bool // send the swim activation sequence
	Reset     bool // hold the target in reset during activation
}

// Init starts a swim session on the target. With Reset the cpu is held in
// reset while the debug module is configured and comes up stalled.
func (s *Session) Init(opts InitOptions) error {
	var c Controller

	if opts.Reset || opts.SwimEntry {
		var err error
		if c, err = s.controller(); err != nil {
			return err
		}
	}

	if opts.Reset {
		if err := c.Reset(ResetAssert); err != nil {
			return errors.Annotate(err, "assert reset")
		}
	}

	if opts.SwimEntry {
		logger.Debug("sending swim entry sequence")

		if err := c.SwimEntry(); err != nil {
			return errors.Annotate(err, "swim entry")
		}
	}

	if err := s.probe.WriteByteAt(SwimCsrAddress, swimCsrDebugAccess); err != nil {
		return errors.Annotate(err, "write SWIM_CSR")
	}

	if opts.Reset {
		if err := c.Reset(ResetRelease); err != nil {
			return errors.Annotate(err, "release reset")
		}
	}

	time.Sleep(resetSettleTime)

	logger.Info("swim session initialized")
	return nil
}

// SetHighSpeed switches the swim line to high speed. The target is told
// through SWIM_CSR.HS before the probe changes its own timing.
func (s *Session) SetHighSpeed() error {
	l, err := s.lineController()
	if err != nil {
		return err
	}

	csr := s.CPU.Register("SWIM_CSR")

	hsit, err := csr.ReadField("HSIT")
	if err != nil {
		return errors.Trace(err)
	}
	if hsit == 0 {
		return errors.Trace(ErrNoHighSpeed)
	}

	if err := csr.WriteField("HS", 1); err != nil {
		return errors.Annotate(err, "write SWIM_CSR.HS")
	}

	logger.Debug("switching swim line to high speed")

	return errors.Annotate(l.SetSwimSpeed(true), "set probe swim speed")
}

// Resync resynchronises the swim line after the target lost it, e.g. on a
// reset triggered by its own firmware.
func (s *Session) Resync() error {
	l, err := s.lineController()
	if err != nil {
		return err
	}
	return errors.Annotate(l.Resync(), "swim resync")
}

// program flash starts here, below are eeprom and option bytes
const programAreaStart = 0x8000

// unlockFor unlocks the program area and, if any segment lies below it, the
// data area.
func (s *Session) unlockFor(segments []Segment) error {
	if err := s.Flash.UnlockProgram(); err != nil {
		return err
	}

	for _, segment := range segments {
		if segment.Addr < programAreaStart {
			return s.Flash.UnlockData()
		}
	}
	return nil
}

// ProgramBinary writes data to flash or eeprom starting at addr.
func (s *Session) ProgramBinary(addr uint32, data []byte) error {
	if err := s.unlockFor([]Segment{{Addr: addr, Data: data}}); err != nil {
		return err
	}
	return errors.Trace(s.Programmer.WriteSegment(addr, data))
}

// ProgramHex parses a whole hex image before writing any of it.
func (s *Session) ProgramHex(r io.Reader) error {
	segments, err := LoadMerged(r)
	if err != nil {
		return err
	}

	return s.ProgramSegments(segments)
}

// ProgramSegments writes already loaded segments in order.
func (s *Session) ProgramSegments(segments []Segment) error {
	if err := s.unlockFor(segments); err != nil {
		return err
	}
	return s.Programmer.WriteSegments(segments)
}

func (s *Session) ReadMemory(addr uint32, length int) ([]byte, error) {
	return ReadRange(s.probe, addr, length, ReadChunkSize)
}

// SetReadoutProtection changes the ROP option byte and resets the target so
// the new setting takes effect.
func (s *Session) SetReadoutProtection(enable bool) error {
	c, err := s.controller()
	if err != nil {
		return err
	}

	if err := s.Options.Unlock(); err != nil {
		return err
	}
	if err := s.Options.EnableReadoutProtection(enable); err != nil {
		return err
	}

	if err := c.Reset(ResetAssert); err != nil {
		return errors.Trace(err)
	}
	time.Sleep(resetSettleTime)

	return errors.Trace(c.Reset(ResetFloat))
}

// FactoryReset restores the default option bytes, e.g. after a readout
// protected device was erased by removing ROP, and soft resets the target.
func (s *Session) FactoryReset() error {
	c, err := s.controller()
	if err != nil {
		return err
	}

	if err := s.Options.Unlock(); err != nil {
		return err
	}
	if err := s.Options.RestoreDefaults(); err != nil {
		return err
	}

	return errors.Trace(c.SoftReset())
}

func (s *Session) Close() error {
	return s.probe.Close()
}
