// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package goswim

import (
	"time"

	"github.com/juju/errors"
)

type transferCtx struct {
	direction  transferDirection
	cmdBuffer  *Buffer
	dataBuffer *Buffer
}

func (h *StLink) initTransfer(direction transferDirection) *transferCtx {
	return &transferCtx{
		direction:  direction,
		cmdBuffer:  NewBuffer(cmdSizeV2),
		dataBuffer: NewBuffer(dataBufferSize),
	}
}

func (ctx *transferCtx) DataBytes() []byte {
	return ctx.dataBuffer.Bytes()
}

func (h *StLink) usbTransferNoErrCheck(ctx *transferCtx, size uint32) error {
	cmd := make([]byte, cmdSizeV2)
	copy(cmd, ctx.cmdBuffer.Bytes())

	if _, err := usbWrite(h.txEndpoint, cmd); err != nil {
		return err
	}

	if size == 0 {
		return nil
	}

	if ctx.direction == transferOutgoing {
		data := ctx.dataBuffer.Bytes()
		if uint32(len(data)) < size {
			return errors.Errorf("outgoing transfer of %d bytes with only %d bytes buffered", size, len(data))
		}

		_, err := usbWrite(h.txEndpoint, data[:size])
		return err
	}

	buffer := make([]byte, size)

	bytesRead, err := usbRead(h.rxEndpoint, buffer)
	if err != nil {
		return err
	}

	ctx.dataBuffer.Reset()
	ctx.dataBuffer.Write(buffer[:bytesRead])

	return nil
}

func (h *StLink) swimStatus() (*transferCtx, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimReadStatus)

	/* error is checked by the caller */
	if err := h.usbTransferNoErrCheck(ctx, swimStatusSize); err != nil {
		return nil, err
	}

	return ctx, nil
}

/** Issue an STLINK command via USB transfer, with retries on any wait status responses.

  In SWIM mode the command is only sent once, a SWIM_READSTATUS is polled
  afterwards until the probe no longer reports busy.
*/
func (h *StLink) usbCmdAllowRetry(ctx *transferCtx, size uint32) error {
	var retries int = 0

	for {
		if h.stMode != StLinkModeDebugSwim || retries == 0 {
			if err := h.usbTransferNoErrCheck(ctx, size); err != nil {
				return err
			}
		}

		statusCtx := ctx
		if h.stMode == StLinkModeDebugSwim {
			var err error
			if statusCtx, err = h.swimStatus(); err != nil {
				return err
			}
		}

		err := h.usbErrorCheck(statusCtx)

		if err != nil {
			if deviceErr, ok := err.(*DeviceError); ok && deviceErr.Code == ErrorWait && retries < maximumWaitRetries {
				var delay time.Duration = (1 << retries) * time.Millisecond

				retries++
				logger.Debugf("cmdAllowRetry ERROR_WAIT, retry %d, delaying %v", retries, delay)
				time.Sleep(delay)

				continue
			}
		}

		return err
	}
}
