// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/juju/errors"
)

// SetSwimSpeed switches the SWIM line between low speed (the default after
// entry) and high speed. The target has to be told first through
// SWIM_CSR.HS.
func (h *StLink) SetSwimSpeed(high bool) error {
	if high && !h.version.flags.Get(flagHasSwimSpeed) {
		return errors.New("this st-link firmware cannot switch swim speed")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimSpeed)

	if high {
		ctx.cmdBuffer.WriteByte(1)
	} else {
		ctx.cmdBuffer.WriteByte(0)
	}

	logger.Debugf("setting swim speed (high speed: %v)", high)

	return h.usbCmdAllowRetry(ctx, 0)
}

// Resync re-synchronises the SWIM line, e.g. after the target was reset by
// its own firmware.
func (h *StLink) Resync() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimReset)

	return h.usbCmdAllowRetry(ctx, 0)
}
