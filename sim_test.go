// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"fmt"
)

// iapsr bits
const (
	simWrPgDis = 0x01
	simPul     = 0x02
	simEop     = 0x04
	simDul     = 0x08
)

type simWrite struct {
	addr uint32
	data []byte
}

type simRead struct {
	addr   uint32
	length int
}

// simTarget is an in memory STM8 behind a probe. It models the flash
// controller unlock sequences, page programming and single stepping closely
// enough to drive the register views.
type simTarget struct {
	mem map[uint32]byte

	writes []simWrite
	reads  []simRead
	resets []string

	// flash controller behaviour
	lockedForever  bool // unlock keys have no effect
	eopNever       bool // programming never finishes
	writeProtected bool // page writes are refused

	// debug module behaviour
	stepHitsBreak bool

	pukrArmed bool
	dukrArmed bool

	closed bool

	failRead error
}

func newSimTarget() *simTarget {
	s := &simTarget{mem: make(map[uint32]byte)}
	s.mem[flashNcr2Address] = 0xFF
	return s
}

func (s *simTarget) load(addr uint32, data []byte) {
	for i, b := range data {
		s.mem[addr+uint32(i)] = b
	}
}

func (s *simTarget) peek(addr uint32, length int) []byte {
	data := make([]byte, length)
	for i := range data {
		data[i] = s.mem[addr+uint32(i)]
	}
	return data
}

func (s *simTarget) ReadByteAt(addr uint32) (byte, error) {
	data, err := s.ReadBytes(addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (s *simTarget) ReadBytes(addr uint32, length int) ([]byte, error) {
	if err := checkTransferSize(length); err != nil {
		return nil, err
	}
	if s.failRead != nil {
		return nil, s.failRead
	}

	s.reads = append(s.reads, simRead{addr: addr, length: length})
	return s.peek(addr, length), nil
}

func (s *simTarget) WriteByteAt(addr uint32, value byte) error {
	return s.WriteBytes(addr, []byte{value})
}

func (s *simTarget) WriteBytes(addr uint32, data []byte) error {
	if err := checkTransferSize(len(data)); err != nil {
		return err
	}

	s.writes = append(s.writes, simWrite{addr: addr, data: append([]byte(nil), data...)})

	if len(data) == 1 {
		switch addr {
		case flashPukrAddress:
			s.unlockKey(&s.pukrArmed, data[0], programUnlockKeys, simPul)
			return nil
		case flashDukrAddress:
			s.unlockKey(&s.dukrArmed, data[0], dataUnlockKeys, simDul)
			return nil
		case dmCsr2Address:
			s.load(addr, data)
			s.stepIfRequested()
			return nil
		}
	}

	s.load(addr, data)

	if s.programmable(addr) {
		s.program()
	}
	return nil
}

func (s *simTarget) unlockKey(armed *bool, value byte, keys [2]uint8, bit byte) {
	if s.lockedForever {
		return
	}

	switch {
	case !*armed && value == keys[0]:
		*armed = true
	case *armed && value == keys[1]:
		*armed = false
		s.mem[flashIapsrAddress] |= bit
	default:
		*armed = false
	}
}

func (s *simTarget) programmable(addr uint32) bool {
	return addr >= 0x8000 || (addr >= 0x4000 && addr < 0x4900)
}

func (s *simTarget) program() {
	s.mem[flashCr2Address] &^= flashPrgBit
	s.mem[flashNcr2Address] |= flashPrgBit

	switch {
	case s.writeProtected:
		s.mem[flashIapsrAddress] |= simWrPgDis
	case s.eopNever:
	default:
		s.mem[flashIapsrAddress] |= simEop
	}
}

// a cleared STALL with STE set executes one instruction and stalls again
func (s *simTarget) stepIfRequested() {
	const (
		ste   = 0x40
		stf   = 0x20
		stall = 0x08
	)

	if s.mem[dmCsr2Address]&stall != 0 || s.mem[dmCsr1Address]&ste == 0 {
		return
	}

	s.mem[dmCsr2Address] |= stall
	if !s.stepHitsBreak {
		s.mem[dmCsr1Address] |= stf
	}
}

func (s *simTarget) Close() error {
	s.closed = true
	return nil
}

// pageWrites returns all 64 byte writes into flash.
func (s *simTarget) pageWrites() []simWrite {
	var pages []simWrite
	for _, w := range s.writes {
		if len(w.data) == PageSize && s.programmable(w.addr) {
			pages = append(pages, w)
		}
	}
	return pages
}

// simController adds reset line handling to the simulated target.
type simController struct {
	*simTarget
}

func (c simController) Reset(line ResetLine) error {
	c.resets = append(c.resets, fmt.Sprintf("reset:%d", line))
	return nil
}

func (c simController) SwimEntry() error {
	c.resets = append(c.resets, "swim-entry")
	return nil
}

func (c simController) SoftReset() error {
	c.resets = append(c.resets, "soft-reset")
	return nil
}

func (s *simTarget) readsAt(addr uint32) int {
	n := 0
	for _, r := range s.reads {
		if r.addr == addr {
			n++
		}
	}
	return n
}
