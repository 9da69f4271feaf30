// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/juju/errors"
)

// debug module register addresses
const (
	dmBkr1Address = 0x7F90
	dmBkr2Address = 0x7F93
	dmCr1Address  = 0x7F96
	dmCr2Address  = 0x7F97
	dmCsr1Address = 0x7F98
	dmCsr2Address = 0x7F99
)

// breakpointControl spans BC2..BC0, BIR and BIW of DM_CR1 as one value.
var breakpointControl = Field{Name: "BC*", Offset: 1, Width: 5}

// Debugger drives the run state of the target cpu through the debug module
// registers. Whether the cpu runs when a session attaches is not known.
type Debugger struct {
	*RegisterGroup

	bkr1 *WideRegister
	bkr2 *WideRegister
	cr1  *Register
	cr2  *Register
	csr1 *Register
	csr2 *Register
}

func NewDebugger(probe Probe) *Debugger {
	d := &Debugger{RegisterGroup: NewRegisterGroup(probe, "DM")}

	d.bkr1 = d.AddWideRegister("DM_BKR1", dmBkr1Address, 3)
	d.bkr2 = d.AddWideRegister("DM_BKR2", dmBkr2Address, 3)

	d.cr1 = d.AddRegister("DM_CR1", dmCr1Address,
		Field{"WDGOFF", 7, 1}, Field{"BC", 3, 3}, Field{"BIR", 2, 1}, Field{"BIW", 1, 1})
	d.cr2 = d.AddRegister("DM_CR2", dmCr2Address,
		Field{"FV_ROM", 2, 1}, Field{"FV_RAM", 1, 1})
	d.csr1 = d.AddRegister("DM_CSR1", dmCsr1Address,
		Field{"STE", 6, 1}, Field{"STF", 5, 1}, Field{"RST", 4, 1}, Field{"BRW", 3, 1}, Field{"BK2F", 2, 1}, Field{"BK1F", 1, 1})
	d.csr2 = d.AddRegister("DM_CSR2", dmCsr2Address,
		Field{"SWBKE", 5, 1}, Field{"SWBKF", 4, 1}, Field{"STALL", 3, 1}, Field{"FLUSH", 0, 1})

	return d
}

// Pause requests a stall. The cpu is halted once DM_CSR2.STALL reads back set.
func (d *Debugger) Pause() error {
	logger.Debug("stalling cpu")
	return errors.Trace(d.csr2.WriteField("STALL", 1))
}

func (d *Debugger) Resume() error {
	logger.Debug("releasing cpu stall")
	return errors.Trace(d.csr2.WriteField("STALL", 0))
}

func (d *Debugger) Stalled() (bool, error) {
	stall, err := d.csr2.ReadField("STALL")
	if err != nil {
		return false, errors.Trace(err)
	}
	return stall != 0, nil
}

// Step executes exactly one instruction. It returns true if the cpu stopped
// because of the step request and false if a breakpoint fired on the same
// instruction.
//
// The wait for the stall is unbounded; wrap the call with a timeout of your
// own if the target might not respond.
func (d *Debugger) Step() (bool, error) {
	if err := d.csr1.WriteField("STE", 1); err != nil {
		return false, errors.Trace(err)
	}

	if err := d.Resume(); err != nil {
		return false, err
	}

	for {
		stalled, err := d.Stalled()
		if err != nil {
			return false, err
		}
		if stalled {
			break
		}
	}

	if err := d.csr1.WriteField("STE", 0); err != nil {
		return false, errors.Trace(err)
	}

	stepped, err := d.csr1.ReadField("STF")
	if err != nil {
		return false, errors.Trace(err)
	}

	return stepped != 0, nil
}

// SetBreakpoint arms the named breakpoint mode with the two bank addresses.
func (d *Debugger) SetBreakpoint(modeName string, bk1 uint32, bk2 uint32) error {
	mode, err := LookupBreakpointMode(modeName)
	if err != nil {
		return err
	}

	logger.Debugf("setting breakpoint mode %q (%05b), BK1=%06x BK2=%06x", mode.Name, mode.Bits(), bk1, bk2)

	if err := d.cr1.Write(breakpointControl, mode.Bits()); err != nil {
		return errors.Trace(err)
	}
	if err := d.bkr1.SetValue(bk1); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.bkr2.SetValue(bk2))
}

func (d *Debugger) ClearBreakpoint() error {
	return d.SetBreakpoint(BreakpointDisabled, 0, 0)
}

// Breakpoint reads back the current breakpoint configuration. ok is false if
// the control bits hold a pattern without a named mode.
func (d *Debugger) Breakpoint() (mode BreakpointMode, bk1 uint32, bk2 uint32, ok bool, err error) {
	bits, err := d.cr1.Read(breakpointControl)
	if err != nil {
		return mode, 0, 0, false, errors.Trace(err)
	}

	if bk1, err = d.bkr1.Value(); err != nil {
		return mode, 0, 0, false, errors.Trace(err)
	}
	if bk2, err = d.bkr2.Value(); err != nil {
		return mode, 0, 0, false, errors.Trace(err)
	}

	mode, ok = DecodeBreakpointMode(bits)
	return mode, bk1, bk2, ok, nil
}
