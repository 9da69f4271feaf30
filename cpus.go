// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import "strings"

// DeviceInfo holds the memory layout of an STM8 part.
type DeviceInfo struct {
	FlashStart  uint32
	FlashSize   uint32
	EepromStart uint32
	EepromSize  uint32
	RamSize     uint32
}

var supportedStm8Devices = map[string]DeviceInfo{
	"STM8S003F3": {0x8000, 0x2000, 0x4000, 0x80, 0x400},
	"STM8S003K3": {0x8000, 0x2000, 0x4000, 0x80, 0x400},
	"STM8S103F3": {0x8000, 0x2000, 0x4000, 0x280, 0x400},
	"STM8S103K3": {0x8000, 0x2000, 0x4000, 0x280, 0x400},
	"STM8S105C6": {0x8000, 0x8000, 0x4000, 0x400, 0x800},
	"STM8S105K4": {0x8000, 0x4000, 0x4000, 0x400, 0x800},
	"STM8S207RB": {0x8000, 0x20000, 0x4000, 0x800, 0x1800},
	"STM8L051F3": {0x8000, 0x2000, 0x1000, 0x100, 0x400},
}

// DefaultDevice is the part of the common low cost breakout boards.
const DefaultDevice = "STM8S103F3"

func GetDeviceInformation(deviceId string) *DeviceInfo {
	if val, ok := supportedStm8Devices[strings.ToUpper(deviceId)]; ok {
		return &val
	} else {
		return nil
	}
}

// Writable reports whether the range lies completely within program flash or
// data eeprom of the part.
func (d *DeviceInfo) Writable(addr uint32, length int) bool {
	end := uint64(addr) + uint64(length)

	if addr >= d.FlashStart && end <= uint64(d.FlashStart)+uint64(d.FlashSize) {
		return true
	}
	return addr >= d.EepromStart && end <= uint64(d.EepromStart)+uint64(d.EepromSize)
}
