// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/juju/errors"
)

func (h *StLink) usbModeEnter(stMode StLinkMode) error {
	ctx := h.initTransfer(transferIncoming)

	switch stMode {
	case StLinkModeDebugSwim:
		ctx.cmdBuffer.WriteByte(cmdSwim)
		ctx.cmdBuffer.WriteByte(swimEnter)

		/* swim enter does not return any response or status */
		return h.usbTransferNoErrCheck(ctx, 0)

	default:
		return errors.Errorf("cannot enter st-link mode %d, only swim is supported", stMode)
	}
}

func (h *StLink) usbCurrentMode() (byte, error) {

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetCurrentMode)

	err := h.usbTransferNoErrCheck(ctx, 2)

	if err != nil {
		return 0, err
	} else if len(ctx.DataBytes()) == 0 {
		return 0, newDeviceError(ErrorProtocolMismatch, "empty mode response", nil)
	} else {
		return ctx.DataBytes()[0], nil
	}
}

func (h *StLink) usbInitMode(connectUnderReset bool) error {

	mode, err := h.usbCurrentMode()

	if err != nil {
		logger.Error("could not get usb mode")
		return err
	}

	logger.Tracef("device usb mode before switching: %s (0x%02x)", usbModeToString(mode), mode)

	var stLinkMode StLinkMode

	switch mode {
	case deviceModeDFU:
		stLinkMode = StLinkModeDfu

	case deviceModeDebug:
		stLinkMode = StLinkModeDebugSwd

	case deviceModeSwim:
		stLinkMode = StLinkModeDebugSwim

	case deviceModeMass:
		stLinkMode = StLinkModeMass

	default:
		stLinkMode = StLinkModeUnknown
	}

	if stLinkMode != StLinkModeUnknown {
		if err = h.usbLeaveMode(stLinkMode); err != nil {
			logger.Warn("error occured while trying to leave mode: ", err)
		}
	}

	mode, err = h.usbCurrentMode()

	if err != nil {
		logger.Error("could not get usb mode")
		return err
	}

	logger.Tracef("device usb mode after mode exit: %s (0x%02x)", usbModeToString(mode), mode)

	/* we check the target voltage here as an aid to debugging connection problems.
	 * the stlink requires the target Vdd to be connected for reliable debugging.
	 * this cmd is supported in all modes except DFU
	 */
	if mode != deviceModeDFU {
		voltage, err := h.GetTargetVoltage()

		if err != nil {
			logger.Debug(err)
			// attempt to continue as it is not a catastrophic failure
		} else if voltage < 1.5 {
			logger.Warn("target voltage may be too low for reliable debugging")
		}
	}

	logger.Tracef("Entering usb mode %d", h.stMode)

	if err = h.usbModeEnter(h.stMode); err != nil {
		return err
	}

	if connectUnderReset {
		logger.Trace("Assert RST line")

		if err = h.swimAssertReset(true); err != nil {
			return err
		}
	}

	mode, err = h.usbCurrentMode()

	if err != nil {
		return err
	}

	logger.Tracef("device usb mode after mode enter: %s (0x%02x)", usbModeToString(mode), mode)

	return nil
}

func (h *StLink) usbLeaveMode(mode StLinkMode) error {
	ctx := h.initTransfer(transferIncoming)

	switch mode {
	case StLinkModeDebugJtag, StLinkModeDebugSwd:
		ctx.cmdBuffer.WriteByte(cmdDebug)
		ctx.cmdBuffer.WriteByte(debugExit)

	case StLinkModeDebugSwim:
		ctx.cmdBuffer.WriteByte(cmdSwim)
		ctx.cmdBuffer.WriteByte(swimExit)

	case StLinkModeDfu:
		ctx.cmdBuffer.WriteByte(cmdDfu)
		ctx.cmdBuffer.WriteByte(dfuExit)

	case StLinkModeMass:
		return errors.New("cannot leave mass storage mode")
	default:
		return errors.New("unknown stlink mode")
	}

	err := h.usbTransferNoErrCheck(ctx, 0)

	return err
}
