// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

// BreakpointMode is one of the hardware breakpoint configurations of the
// STM8 debug module. Pattern holds the bits BC2 BC1 BC0 BIR BIW.
type BreakpointMode struct {
	Name    string
	Pattern [5]uint8
}

const BreakpointDisabled = "Disabled"

var breakpointModes = [...]BreakpointMode{
	{"Disabled", [5]uint8{0, 0, 0, 0, 0}},
	{"Data Write on @=BK1 and Data=BK2L", [5]uint8{0, 0, 0, 0, 1}},
	{"Data Read on @=BK1 and Data=BK2L", [5]uint8{0, 0, 0, 1, 0}},
	{"Data R/W on @=BK1 and Data=BK2L", [5]uint8{0, 0, 0, 1, 1}},
	{"Instruction fetch BK1<=@<=BK2", [5]uint8{0, 0, 1, 0, 0}},
	{"Data Write on BK1<=@<=BK2", [5]uint8{0, 0, 1, 0, 1}},
	{"Data Read on BK1<=@<=BK2", [5]uint8{0, 0, 1, 1, 0}},
	{"Data R/W on BK1<=@<=BK2", [5]uint8{0, 0, 1, 1, 1}},
	{"Instruction fetch on @<= BK1 or BK2<=@", [5]uint8{0, 1, 0, 0, 0}},
	{"Data Write on @<= BK1 or BK2<=@", [5]uint8{0, 1, 0, 0, 1}},
	{"Data Read on @<= BK1 or BK2<=@", [5]uint8{0, 1, 0, 1, 0}},
	{"Data R/W on @<= BK1 or BK2<=@", [5]uint8{0, 1, 0, 1, 1}},
	{"Instruction fetch on @=BK1 then on @=BK2", [5]uint8{1, 0, 0, 0, 0}},
	{"Data Write on @=BK1 or @=BK2", [5]uint8{1, 0, 0, 0, 1}},
	{"Data Read on @=BK1 or @=BK2", [5]uint8{1, 0, 0, 1, 0}},
	{"Data R/W on @=BK1 or @=BK2", [5]uint8{1, 0, 0, 1, 1}},
	{"Instruction fetch on @=BK1 or @=BK2", [5]uint8{1, 0, 1, 0, 0}},
	{"Instruction fetch on @=BK1 / Data Write on @=BK2", [5]uint8{1, 0, 1, 0, 1}},
	{"Instruction fetch on @=BK1 / Data Read on @=BK2", [5]uint8{1, 0, 1, 1, 0}},
	{"Instruction fetch on @=BK1 / Data R/W on @=BK2", [5]uint8{1, 0, 1, 1, 1}},
	{"Data Write in Stack on @<=BK1 / Instruction fetch on @=BK2", [5]uint8{1, 1, 1, 0, 0}},
	{"Data Write in Stack on @<=BK1 / Data Write on @=BK2", [5]uint8{1, 1, 1, 0, 1}},
	{"Data Write in Stack on @<=BK1 / Data Read on @=BK2", [5]uint8{1, 1, 1, 1, 0}},
	{"Data Write in Stack on @<=BK1 / Data R/W on @=BK2", [5]uint8{1, 1, 1, 1, 1}},
}

// BreakpointModes returns a copy of the mode table.
func BreakpointModes() []BreakpointMode {
	modes := make([]BreakpointMode, len(breakpointModes))
	copy(modes, breakpointModes[:])
	return modes
}

func LookupBreakpointMode(name string) (BreakpointMode, error) {
	for _, mode := range breakpointModes {
		if mode.Name == name {
			return mode, nil
		}
	}
	return BreakpointMode{}, &UnknownModeError{Name: name}
}

// DecodeBreakpointMode maps a packed 5 bit pattern back to its mode. Patterns
// without a documented mode report false.
func DecodeBreakpointMode(bits uint8) (BreakpointMode, bool) {
	for _, mode := range breakpointModes {
		if mode.Bits() == bits&0x1f {
			return mode, true
		}
	}
	return BreakpointMode{}, false
}

// Bits packs the pattern as BC2 BC1 BC0 BIR BIW, most significant first.
func (m BreakpointMode) Bits() uint8 {
	var bits uint8
	for _, b := range m.Pattern {
		bits = bits<<1 | (b & 1)
	}
	return bits
}

func (m BreakpointMode) String() string {
	return m.Name
}
