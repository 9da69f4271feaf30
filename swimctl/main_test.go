// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandsAttach(t *testing.T) {
	// option bytes are read and written on a running target
	assert.False(t, commands["rop"].reset)
	assert.True(t, commands["factory-reset"].reset)
	assert.False(t, commands["resync"].reset)

	for name, cmd := range commands {
		assert.NotNil(t, cmd.run, name)
		assert.NotEmpty(t, cmd.usage, name)
	}
}

func TestReadoutProtectionArgs(t *testing.T) {
	// rejected before the session is touched
	assert.Error(t, readoutProtection(nil, []string{"maybe"}))
	assert.Error(t, readoutProtection(nil, []string{"on", "off"}))
}

func TestParseNumber(t *testing.T) {
	value, err := parseNumber("0x8000", 24)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x8000), value)

	_, err = parseNumber("PD3", 24)
	assert.Error(t, err)
}
