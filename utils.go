// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import "github.com/google/gousb"

func idExists(slice []gousb.ID, item gousb.ID) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

// uint32ToBigEndian fills the whole buffer, most significant byte first.
func uint32ToBigEndian(buffer []byte, value uint32) {
	for i := len(buffer) - 1; i >= 0; i-- {
		buffer[i] = byte(value)
		value >>= 8
	}
}

func addressToBigEndian24(buffer []byte, addr uint32) {
	buffer[0] = byte(addr >> 16)
	buffer[1] = byte(addr >> 8)
	buffer[2] = byte(addr)
}
