// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	cpuRegistersAddress = 0x7F00
	cpuRegistersSize    = 11

	SwimCsrAddress = 0x7F80
)

var cpuByteRegisters = []struct {
	name    string
	address uint32
}{
	{"A", 0x7F00},
	{"PCE", 0x7F01},
	{"PCH", 0x7F02},
	{"PCL", 0x7F03},
	{"XH", 0x7F04},
	{"XL", 0x7F05},
	{"YH", 0x7F06},
	{"YL", 0x7F07},
	{"SPH", 0x7F08},
	{"SPL", 0x7F09},
}

// CPU is the register view of the STM8 core plus the few peripherals the
// debugging tools touch.
type CPU struct {
	*RegisterGroup
	probe Probe
}

func NewCPU(probe Probe) *CPU {
	c := &CPU{RegisterGroup: NewRegisterGroup(probe, "CPU"), probe: probe}

	for _, r := range cpuByteRegisters {
		c.AddRegister(r.name, r.address)
	}

	c.AddRegister("CC", 0x7F0A,
		Field{"V", 7, 1}, Field{"I1", 5, 1}, Field{"H", 4, 1}, Field{"I0", 3, 1},
		Field{"N", 2, 1}, Field{"Z", 1, 1}, Field{"C", 0, 1})

	c.AddWideRegister("PC", 0x7F01, 3)
	c.AddWideRegister("X", 0x7F04, 2)
	c.AddWideRegister("Y", 0x7F06, 2)
	c.AddWideRegister("SP", 0x7F08, 2)

	c.AddWideRegister("TIM1_CNTR", 0x525E, 2)
	c.AddRegister("TIM1_CR1", 0x5250, Field{"CEN", 0, 1})
	c.AddRegister("TIM1_SMCR", 0x5252, Field{"SMS", 0, 3}, Field{"TS", 4, 3}, Field{"MSM", 7, 1})
	c.AddRegister("TIM1_ETR", 0x5253, Field{"ETF", 0, 4}, Field{"ETPS", 4, 2}, Field{"ECE", 6, 1}, Field{"ETP", 7, 1})
	c.AddRegister("CLK_CMSR", 0x50C3)
	c.AddRegister("CLK_SWR", 0x50C4)
	c.AddRegister("CLK_SWCR", 0x50C5, Field{"SWIF", 3, 1}, Field{"SWIEN", 2, 1}, Field{"SWEN", 1, 1}, Field{"SWBSY", 0, 1})
	c.AddRegister("SWIM_CSR", SwimCsrAddress,
		Field{"SAFE_MASK", 7, 1}, Field{"NO_ACCESS", 6, 1}, Field{"SWIM_DM", 5, 1}, Field{"HS", 4, 1},
		Field{"OSCOFF", 3, 1}, Field{"RST", 2, 1}, Field{"HSIT", 1, 1}, Field{"PRI", 0, 1})

	return c
}

// CPUState is a snapshot of the core registers and the top of the stack.
type CPUState struct {
	PC    uint32
	X     uint16
	Y     uint16
	A     uint8
	SP    uint16
	CC    uint8
	Stack []byte
}

const stackPeekSize = 8

// State reads all core registers in one transaction. The cpu should be
// stalled, otherwise the values are a moving target.
func (c *CPU) State() (*CPUState, error) {
	raw, err := c.probe.ReadBytes(cpuRegistersAddress, cpuRegistersSize)
	if err != nil {
		return nil, errors.Annotate(err, "read cpu registers")
	}
	if len(raw) != cpuRegistersSize {
		return nil, errors.Errorf("short cpu register read (%d bytes)", len(raw))
	}

	s := &CPUState{
		A:  raw[0],
		PC: uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]),
		X:  uint16(raw[4])<<8 | uint16(raw[5]),
		Y:  uint16(raw[6])<<8 | uint16(raw[7]),
		SP: uint16(raw[8])<<8 | uint16(raw[9]),
		CC: raw[10],
	}

	s.Stack, err = c.probe.ReadBytes(uint32(s.SP), stackPeekSize)
	if err != nil {
		return nil, errors.Annotate(err, "read stack")
	}

	return s, nil
}

func printable(b uint8) byte {
	if b > 0x20 && b < 0x7f {
		return b
	}
	return '.'
}

func (s *CPUState) String() string {
	return fmt.Sprintf("%06x: X=%04x %5d %c Y=%04x %5d %c A=%02x %3d %c SP=%04x CC=%08b",
		s.PC, s.X, s.X, printable(uint8(s.X)), s.Y, s.Y, printable(uint8(s.Y)), s.A, s.A, printable(s.A), s.SP, s.CC)
}
