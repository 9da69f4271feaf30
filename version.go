// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
)

type stLinkVersion struct {
	stlink int
	jtag   int
	swim   int
	flags  bitmap.Bitmap
}

func (h *StLink) usbParseVersion() error {
	var v, x, y, jtag, swim, msd, bridge byte = 0, 0, 0, 0, 0, 0, 0

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetVersion)

	err := h.usbTransferNoErrCheck(ctx, 6)

	if err != nil {
		return err
	}

	if len(ctx.DataBytes()) < 6 {
		return newDeviceError(ErrorProtocolMismatch, "short version response", ctx.DataBytes())
	}

	version := ctx.dataBuffer.ReadUint16BE()

	v = byte((version >> 12) & 0x0f)
	x = byte((version >> 6) & 0x3f)
	y = byte(version & 0x3f)

	h.vid = gousb.ID(convertToUint16(ctx.DataBytes()[2:], littleEndian))
	h.pid = gousb.ID(convertToUint16(ctx.DataBytes()[4:], littleEndian))

	switch h.pid {
	case stLinkV21Pid, stLinkV21NoMsdPid:
		if (x <= 22 && y == 7) || (x >= 25 && y >= 7 && y <= 12) {
			msd = x
			swim = y
			jtag = 0
		} else {
			jtag = x
			msd = y
			swim = 0
		}

	default:
		jtag = x
		msd = 0
		swim = y
	}

	/* STLINK-V3 requires a specific command */
	if v == 3 && x == 0 && y == 0 {
		ctxV3 := h.initTransfer(transferIncoming)

		ctxV3.cmdBuffer.WriteByte(debugApiV3GetVersionEx)

		err := h.usbTransferNoErrCheck(ctxV3, 12)

		if err != nil {
			return err
		}

		if len(ctxV3.DataBytes()) < 12 {
			return newDeviceError(ErrorProtocolMismatch, "short v3 version response", ctxV3.DataBytes())
		}

		v = ctxV3.DataBytes()[0]
		swim = ctxV3.DataBytes()[1]
		jtag = ctxV3.DataBytes()[2]
		msd = ctxV3.DataBytes()[3]
		bridge = ctxV3.DataBytes()[4]
		h.vid = gousb.ID(convertToUint16(ctxV3.DataBytes()[8:], littleEndian))
		h.pid = gousb.ID(convertToUint16(ctxV3.DataBytes()[10:], littleEndian))
	}

	h.version.stlink = int(v)
	h.version.jtag = int(jtag)
	h.version.swim = int(swim)

	var flags bitmap.Bitmap = bitmap.New(32)

	switch h.version.stlink {
	case 2:
		/* API for target voltage from J13 */
		if h.version.jtag >= 13 {
			flags.Set(flagHasTargetVolt, true)
		}

		/* swim high speed from S7 */
		if h.version.swim >= 7 {
			flags.Set(flagHasSwimSpeed, true)
		}
	case 3:
		flags.Set(flagHasTargetVolt, true)
		flags.Set(flagHasSwimSpeed, true)

	default:
		break
	}

	h.version.flags = flags

	var vStr string = fmt.Sprintf("V%d", v)

	if jtag > 0 || msd != 0 {
		vStr += fmt.Sprintf("J%d", jtag)
	}

	if msd > 0 {
		vStr += fmt.Sprintf("M%d", msd)
	}

	if swim > 0 {
		vStr += fmt.Sprintf("S%d", swim)
	}

	if bridge > 0 {
		vStr += fmt.Sprintf("B%d", bridge)
	}

	serialNo, _ := h.libUsbDevice.SerialNumber()

	logger.Debugf("parsed st-link version [%s] for [%s]", vStr, serialNo)

	return nil
}
