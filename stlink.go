// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package goswim

import (
	"io"

	"github.com/google/gousb"
	"github.com/juju/errors"
)

const AllSupportedVIds = 0xFFFF
const AllSupportedPIds = 0xFFFF

var supportedVIds = []gousb.ID{0x0483} // STLINK Vendor ID
var supportedPIds = []gousb.ID{stLinkV1Pid, stLinkV2Pid, stLinkV21Pid, stLinkV21NoMsdPid,
	stLinkV3UsbLoaderPid, stLinkV3EPid, stLinkV3SPid, stLinkV32VcpPid}

// StLink is an ST-Link adapter driven in SWIM mode. It implements Probe and
// Controller.
type StLink struct {
	libUsbDevice *gousb.Device
	libUsbConfig *gousb.Config
	libUsbIntf   *gousb.Interface

	// bulk endpoints of the claimed interface
	rxEndpoint io.Reader
	txEndpoint io.Writer

	stMode  StLinkMode
	version stLinkVersion

	vid gousb.ID
	pid gousb.ID
}

type StLinkInterfaceConfig struct {
	vid               gousb.ID
	pid               gousb.ID
	serial            string
	connectUnderReset bool
}

func NewStLinkConfig(vid gousb.ID, pid gousb.ID, serial string, connectUnderReset bool) *StLinkInterfaceConfig {

	config := &StLinkInterfaceConfig{
		vid:               vid,
		pid:               pid,
		serial:            serial,
		connectUnderReset: connectUnderReset,
	}

	return config
}

// NewStLink looks up the configured ST-Link, checks that its firmware speaks
// SWIM and switches it into SWIM mode. InitializeUSB has to be called before.
func NewStLink(config *StLinkInterfaceConfig) (*StLink, error) {
	var err error
	var devices []*gousb.Device

	handle := &StLink{stMode: StLinkModeDebugSwim}

	vids := supportedVIds
	pids := supportedPIds

	if config.vid != AllSupportedVIds {
		vids = []gousb.ID{config.vid}
	}
	if config.pid != AllSupportedPIds {
		pids = []gousb.ID{config.pid}
	}

	devices, err = usbFindDevices(vids, pids)

	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, errors.New("could not find any ST-Link connected to computer")
	}

	if config.serial == "" && len(devices) > 1 {
		closeDevices(devices, nil)
		return nil, errors.New("could not identity exact stlink by given parameters. (Perhaps a serial no is missing?)")
	} else if len(devices) == 1 {
		handle.libUsbDevice = devices[0]
	} else {
		for _, dev := range devices {
			devSerialNo, _ := dev.SerialNumber()

			logger.Debugf("Compare serial no %s with number %s", devSerialNo, config.serial)

			if devSerialNo == config.serial {
				handle.libUsbDevice = dev

				logger.Infof("Found st link with serial number %s", devSerialNo)
			}
		}

		closeDevices(devices, handle.libUsbDevice)
	}

	if handle.libUsbDevice == nil {
		return nil, errors.New("could not find ST-Link by given parameters")
	}

	if err = handle.open(config); err != nil {
		handle.Close()
		return nil, err
	}

	return handle, nil
}

func closeDevices(devices []*gousb.Device, keep *gousb.Device) {
	for _, dev := range devices {
		if dev != keep {
			dev.Close()
		}
	}
}

func (h *StLink) open(config *StLinkInterfaceConfig) error {
	var err error

	// no request required configuration an matching usb interface :D
	h.libUsbConfig, err = h.libUsbDevice.Config(usbInterfaceConfig)
	if err != nil {
		logger.Debug(err)
		return errors.New("could not request configuration #1 for st-link debugger")
	}

	h.libUsbIntf, err = h.libUsbConfig.Interface(usbInterfaceNumber, usbInterfaceAltSetting)
	if err != nil {
		logger.Debug(err)
		return errors.New("could not claim interface 0,0 for st-link debugger")
	}

	txEndpointNo := usbTxEndpointNo

	switch h.libUsbDevice.Desc.Product {
	case stLinkV1Pid:
		return errors.New("swim is not supported on st-link v1")

	case stLinkV3UsbLoaderPid, stLinkV3EPid, stLinkV3SPid, stLinkV32VcpPid, stLinkV21Pid, stLinkV21NoMsdPid:
		txEndpointNo = usbTxEndpointApi2v1

	default:
		logger.Debugf("assuming st-link v2 endpoint layout for pid %04x", uint16(h.libUsbDevice.Desc.Product))
	}

	rxEndpoint, err := h.libUsbIntf.InEndpoint(usbRxEndpointNo)
	if err != nil {
		return errors.Annotate(err, "open rx endpoint")
	}
	txEndpoint, err := h.libUsbIntf.OutEndpoint(txEndpointNo)
	if err != nil {
		return errors.Annotate(err, "open tx endpoint")
	}

	h.rxEndpoint = rxEndpoint
	h.txEndpoint = txEndpoint

	if err = h.usbParseVersion(); err != nil {
		return err
	}

	if h.version.swim == 0 {
		return errors.New("Swim transport not supported by device")
	}

	return h.usbInitMode(config.connectUnderReset)
}

func (h *StLink) Close() error {
	if h.libUsbDevice != nil {
		logger.Debugf("Close ST-Link device [%04x:%04x]", uint16(h.vid), uint16(h.pid))

		if h.txEndpoint != nil {
			if err := h.usbLeaveMode(StLinkModeDebugSwim); err != nil {
				logger.Warn("could not leave swim mode: ", err)
			}
		}

		if h.libUsbIntf != nil {
			h.libUsbIntf.Close()
		}
		if h.libUsbConfig != nil {
			h.libUsbConfig.Close()
		}

		err := h.libUsbDevice.Close()
		h.libUsbDevice = nil

		return errors.Trace(err)
	}

	return nil
}

func (h *StLink) GetTargetVoltage() (float32, error) {
	/* no error message, simply quit with error */
	if !h.version.flags.Get(flagHasTargetVolt) {
		return -1.0, errors.New("device does not support voltage measurement")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetTargetVoltage)

	err := h.usbTransferNoErrCheck(ctx, 8)

	if err != nil {
		return -1.0, err
	}

	if len(ctx.DataBytes()) < 8 {
		return -1.0, newDeviceError(ErrorProtocolMismatch, "short voltage response", ctx.DataBytes())
	}

	/* convert result */
	adcResult0 := ctx.dataBuffer.ReadUint32LE()
	adcResult1 := ctx.dataBuffer.ReadUint32LE()

	var targetVoltage float32 = 0.0

	if adcResult0 > 0 {
		targetVoltage = 2 * (float32(adcResult1) * (1.2 / float32(adcResult0)))
	}

	logger.Infof("Target voltage: %f", targetVoltage)

	return targetVoltage, nil
}

func (h *StLink) ReadByteAt(addr uint32) (byte, error) {
	data, err := h.ReadBytes(addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (h *StLink) ReadBytes(addr uint32, length int) ([]byte, error) {
	if err := checkTransferSize(length); err != nil {
		return nil, err
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimReadMem)
	ctx.cmdBuffer.WriteUint16BE(uint16(length))
	ctx.cmdBuffer.WriteUint32BE(addr)

	if err := h.usbCmdAllowRetry(ctx, 0); err != nil {
		return nil, errors.Annotatef(err, "swim readmem @%06x", addr)
	}

	ctx = h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimReadBuf)

	if err := h.usbTransferNoErrCheck(ctx, uint32(length)); err != nil {
		return nil, errors.Annotatef(err, "swim readbuf @%06x", addr)
	}

	if len(ctx.DataBytes()) != length {
		return nil, newDeviceError(ErrorProtocolMismatch, "short swim read", ctx.DataBytes())
	}

	return append([]byte(nil), ctx.DataBytes()...), nil
}

func (h *StLink) WriteByteAt(addr uint32, value byte) error {
	return h.WriteBytes(addr, []byte{value})
}

func (h *StLink) WriteBytes(addr uint32, data []byte) error {
	if err := checkTransferSize(len(data)); err != nil {
		return err
	}

	ctx := h.initTransfer(transferOutgoing)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimWriteMem)
	ctx.cmdBuffer.WriteUint16BE(uint16(len(data)))
	ctx.cmdBuffer.WriteUint32BE(addr)

	// the first bytes travel within the command block
	inline := cmdSizeV2 - ctx.cmdBuffer.Len()
	if inline > len(data) {
		inline = len(data)
	}

	ctx.cmdBuffer.Write(data[:inline])
	ctx.dataBuffer.Write(data[inline:])

	err := h.usbCmdAllowRetry(ctx, uint32(len(data)-inline))

	return errors.Annotatef(err, "swim writemem @%06x", addr)
}

func (h *StLink) swimAssertReset(assert bool) error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)

	if assert {
		ctx.cmdBuffer.WriteByte(swimAssertReset)
	} else {
		ctx.cmdBuffer.WriteByte(swimDeassertReset)
	}

	return h.usbCmdAllowRetry(ctx, 0)
}

// Reset drives the target reset line. The ST-Link cannot float the line, so
// ResetFloat releases it.
func (h *StLink) Reset(line ResetLine) error {
	return h.swimAssertReset(line == ResetAssert)
}

func (h *StLink) SwimEntry() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimEnterSeq)

	return h.usbCmdAllowRetry(ctx, 0)
}

func (h *StLink) SoftReset() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdSwim)
	ctx.cmdBuffer.WriteByte(swimGenRst)

	return h.usbCmdAllowRetry(ctx, 0)
}
