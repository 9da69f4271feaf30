// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/juju/errors"
)

const (
	OptionBytesAddress = 0x4800

	readoutProtectionEnabled = 0xAA
)

// factory default option block starting at ROP
var defaultOptionBytes = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0xFF}

// Options gives access to the option bytes. Every write waits for the flash
// controller to finish.
type Options struct {
	*RegisterGroup
	flash *Flash
	probe Probe
}

func NewOptions(probe Probe, flash *Flash) *Options {
	o := &Options{RegisterGroup: NewRegisterGroup(probe, "OPT"), flash: flash, probe: probe}

	o.AddRegister("ROP", 0x4800)
	o.AddRegister("UBC", 0x4801)
	o.AddRegister("NUBC", 0x4802)
	o.AddRegister("OPT4", 0x4807, Field{"EXTCLK", 3, 1})
	o.AddRegister("NOPT4", 0x4808, Field{"EXTCLK", 3, 1})

	return o
}

// Unlock enables option byte writes through the data area unlock path.
func (o *Options) Unlock() error {
	if err := o.flash.UnlockOptionBytes(); err != nil {
		return err
	}
	return o.flash.UnlockData()
}

// Set writes a whole option byte and waits for completion.
func (o *Options) Set(name string, value uint8) error {
	r := o.Register(name)
	if r == nil {
		return errors.Annotatef(ErrUnknownField, "option byte %s", name)
	}

	if err := r.SetValue(value); err != nil {
		return err
	}
	return errors.Annotatef(o.flash.WaitReady(r.Address()), "option byte %s", name)
}

// SetField writes a single option bit and waits for completion.
func (o *Options) SetField(name string, field string, value uint8) error {
	r := o.Register(name)
	if r == nil {
		return errors.Annotatef(ErrUnknownField, "option byte %s", name)
	}

	if err := r.WriteField(field, value); err != nil {
		return err
	}
	return errors.Annotatef(o.flash.WaitReady(r.Address()), "option byte %s.%s", name, field)
}

func (o *Options) EnableReadoutProtection(enable bool) error {
	var value uint8
	if enable {
		value = readoutProtectionEnabled
	}

	logger.Infof("setting readout protection to %v", enable)

	return o.Set("ROP", value)
}

func (o *Options) ReadoutProtection() (bool, error) {
	value, err := o.Register("ROP").Value()
	if err != nil {
		return false, err
	}
	return value == readoutProtectionEnabled, nil
}

// RestoreDefaults writes the factory default option bytes. The options have
// to be unlocked first.
func (o *Options) RestoreDefaults() error {
	logger.Info("restoring default option bytes")

	if err := o.probe.WriteBytes(OptionBytesAddress, defaultOptionBytes); err != nil {
		return errors.Annotate(err, "write option bytes")
	}
	return o.flash.WaitReady(OptionBytesAddress)
}
