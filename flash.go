// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/juju/errors"
)

const (
	PageSize = 64

	// PagePollLimit bounds the number of FLASH_IAPSR reads while waiting for
	// the end of a page program. It is an iteration count, not a time.
	PagePollLimit = 320
)

// flash controller register addresses
const (
	flashCr1Address   = 0x505A
	flashCr2Address   = 0x505B
	flashNcr2Address  = 0x505C
	flashFprAddress   = 0x505D
	flashNfprAddress  = 0x505E
	flashIapsrAddress = 0x505F
	flashPukrAddress  = 0x5062
	flashDukrAddress  = 0x5064
)

// unlock key sequences
var (
	dataUnlockKeys    = [2]uint8{0xAE, 0x56}
	programUnlockKeys = [2]uint8{0x56, 0xAE}
)

const flashPrgBit = 0x01

// Flash sequences the flash controller: unlocking the data (eeprom, option
// bytes) and program areas and programming 64 byte pages.
type Flash struct {
	*RegisterGroup
	probe Probe

	cr2   *Register
	ncr2  *Register
	iapsr *Register
	pukr  *Register
	dukr  *Register
}

func NewFlash(probe Probe) *Flash {
	f := &Flash{RegisterGroup: NewRegisterGroup(probe, "FLASH"), probe: probe}

	f.AddRegister("FLASH_CR1", flashCr1Address)
	f.cr2 = f.AddRegister("FLASH_CR2", flashCr2Address, Field{"OPT", 7, 1}, Field{"PRG", 0, 1})
	f.ncr2 = f.AddRegister("FLASH_NCR2", flashNcr2Address, Field{"OPT", 7, 1}, Field{"PRG", 0, 1})
	f.AddRegister("FLASH_FPR", flashFprAddress)
	f.AddRegister("FLASH_NFPR", flashNfprAddress)
	f.iapsr = f.AddRegister("FLASH_IAPSR", flashIapsrAddress,
		Field{"HVOFF", 6, 1}, Field{"DUL", 3, 1}, Field{"EOP", 2, 1}, Field{"PUL", 1, 1}, Field{"WR_PG_DIS", 0, 1})
	f.pukr = f.AddRegister("FLASH_PUKR", flashPukrAddress)
	f.dukr = f.AddRegister("FLASH_DUKR", flashDukrAddress)

	return f
}

func (f *Flash) unlock(region string, key *Register, keys [2]uint8, status string) error {
	logger.Debugf("unlocking %s area", region)

	for _, k := range keys {
		if err := key.SetValue(k); err != nil {
			return errors.Trace(err)
		}
	}

	unlocked, err := f.iapsr.ReadField(status)
	if err != nil {
		return errors.Trace(err)
	}

	if unlocked == 0 {
		return &UnlockFailedError{Region: region}
	}

	return nil
}

// UnlockData unlocks the data area (eeprom, option bytes).
func (f *Flash) UnlockData() error {
	return f.unlock("data", f.dukr, dataUnlockKeys, "DUL")
}

// UnlockProgram unlocks the main program area.
func (f *Flash) UnlockProgram() error {
	return f.unlock("program", f.pukr, programUnlockKeys, "PUL")
}

// Lock write protects the data area again.
func (f *Flash) Lock() error {
	logger.Debug("locking data area")
	return errors.Trace(f.iapsr.WriteField("DUL", 0))
}

// LockProgram write protects the main program area again.
func (f *Flash) LockProgram() error {
	logger.Debug("locking program area")
	return errors.Trace(f.iapsr.WriteField("PUL", 0))
}

// UnlockOptionBytes enables write access to the option bytes. The data area
// has to be unlocked as well.
func (f *Flash) UnlockOptionBytes() error {
	if err := f.cr2.WriteField("OPT", 1); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(f.ncr2.WriteField("OPT", 0))
}

// WritePage programs one 64 byte page. The program area has to be unlocked
// by the caller; this is not checked here to keep the page rate up.
func (f *Flash) WritePage(addr uint32, block []byte) error {
	if addr%PageSize != 0 || len(block) != PageSize {
		return &PageAlignmentError{Addr: addr, Length: len(block)}
	}

	// FLASH_CR2 and FLASH_NCR2 are adjacent, handle them in one go
	vals, err := f.probe.ReadBytes(flashCr2Address, 2)
	if err != nil {
		return errors.Annotate(err, "read FLASH_CR2/FLASH_NCR2")
	}
	if len(vals) != 2 {
		return errors.Errorf("short FLASH_CR2/FLASH_NCR2 read (%d bytes)", len(vals))
	}

	if vals[0]&flashPrgBit != 0 || vals[1]&flashPrgBit == 0 {
		return errors.Trace(ErrProgramPending)
	}

	vals[0] |= flashPrgBit
	vals[1] &^= flashPrgBit

	if err := f.probe.WriteBytes(flashCr2Address, vals); err != nil {
		return errors.Annotate(err, "write FLASH_CR2/FLASH_NCR2")
	}

	logger.Tracef("programming page @%04x", addr)

	if err := f.probe.WriteBytes(addr, block); err != nil {
		return errors.Annotatef(err, "write page @%04x", addr)
	}

	return f.waitEndOfProgram(addr, block)
}

// WaitReady waits for the end of a pending program operation, e.g. after an
// option byte write.
func (f *Flash) WaitReady(addr uint32) error {
	return f.waitEndOfProgram(addr, nil)
}

func (f *Flash) waitEndOfProgram(addr uint32, block []byte) error {
	for i := 0; i < PagePollLimit; i++ {
		eop, err := f.iapsr.ReadField("EOP")
		if err != nil {
			return errors.Trace(err)
		}
		if eop != 0 {
			return nil
		}
	}

	protected, err := f.iapsr.ReadField("WR_PG_DIS")
	if err != nil {
		return errors.Trace(err)
	}

	if protected != 0 {
		return &WriteProtectedError{Addr: addr, Block: append([]byte(nil), block...)}
	}

	return &FlashTimeoutError{Addr: addr, Iterations: PagePollLimit}
}
