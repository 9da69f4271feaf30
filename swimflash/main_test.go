// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/bbnote/goswim"
	"github.com/stretchr/testify/assert"
)

func TestCheckSegments(t *testing.T) {
	large := []goswim.Segment{{Addr: 0x8000, Data: make([]byte, 0x4000)}}

	// no part, no check
	assert.NoError(t, checkSegments("", large))

	assert.Error(t, checkSegments("STM8S103F3", large))
	assert.NoError(t, checkSegments("stm8s105c6", large))
	assert.NoError(t, checkSegments("STM8S207RB", large))

	assert.Error(t, checkSegments("STM32F103", large))
}

func TestParseAddress(t *testing.T) {
	addr, err := parseAddress("0x4000")
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x4000), addr)

	_, err = parseAddress("0x1000000")
	assert.Error(t, err)
}
