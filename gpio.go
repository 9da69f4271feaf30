// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import "github.com/juju/errors"

// GPIO port base addresses
const (
	PortA = 0x5000
	PortB = 0x5005
	PortC = 0x500A
	PortD = 0x500F
	PortE = 0x5014
	PortF = 0x5019
)

// Port is a thin convenience over the five registers of a GPIO port.
type Port struct {
	*RegisterGroup
}

func NewPort(probe Probe, base uint32) *Port {
	p := &Port{RegisterGroup: NewRegisterGroup(probe, "GPIO")}

	for i, name := range []string{"ODR", "IDR", "DDR", "CR1", "CR2"} {
		p.AddRegister(name, base+uint32(i))
	}

	return p
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (p *Port) configure(pin uint, ddr bool, cr1 bool, cr2 bool) error {
	for _, c := range []struct {
		name  string
		value bool
	}{{"DDR", ddr}, {"CR1", cr1}, {"CR2", cr2}} {
		if err := p.Register(c.name).WriteBit(pin, boolBit(c.value)); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// SetOutput configures pin as push-pull or open drain output.
func (p *Port) SetOutput(pin uint, pushPull bool, fastSwitching bool) error {
	return p.configure(pin, true, pushPull, fastSwitching)
}

func (p *Port) SetInput(pin uint, pullUp bool, interrupts bool) error {
	return p.configure(pin, false, pullUp, interrupts)
}

func (p *Port) Set(pin uint, high bool) error {
	return p.Register("ODR").WriteBit(pin, boolBit(high))
}

func (p *Port) Get(pin uint) (bool, error) {
	v, err := p.Register("IDR").ReadBit(pin)
	return v != 0, err
}

// PortBase maps a port letter to the base address of its registers.
func PortBase(port byte) (uint32, bool) {
	if port >= 'a' && port <= 'f' {
		port -= 'a' - 'A'
	}
	if port < 'A' || port > 'F' {
		return 0, false
	}
	return PortA + uint32(port-'A')*5, true
}
