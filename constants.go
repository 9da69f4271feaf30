// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package goswim

type StLinkMode uint8 // stlink debug modes

const (
	StLinkModeUnknown   StLinkMode = 0
	StLinkModeDfu       StLinkMode = 1
	StLinkModeMass      StLinkMode = 2
	StLinkModeDebugJtag StLinkMode = 3
	StLinkModeDebugSwd  StLinkMode = 4
	StLinkModeDebugSwim StLinkMode = 5
)

// StLink property flags (bit index into version flags)
const (
	flagHasTargetVolt = 0
	flagHasSwimSpeed  = 1
)

// usb endpoint numbers
const (
	usbRxEndpointNo        = 1
	usbTxEndpointNo        = 2
	usbTxEndpointApi2v1    = 1
	usbInterfaceConfig     = 1
	usbInterfaceNumber     = 0
	usbInterfaceAltSetting = 0
)

// stlink internal device mode numbers
const (
	deviceModeDFU        = 0x00
	deviceModeMass       = 0x01
	deviceModeDebug      = 0x02
	deviceModeSwim       = 0x03
	deviceModeBootloader = 0x04
)

func usbModeToString(mode byte) string {
	switch mode {
	case deviceModeDFU:
		return "DFU"
	case deviceModeMass:
		return "mass storage"
	case deviceModeDebug:
		return "debug"
	case deviceModeSwim:
		return "swim"
	case deviceModeBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

type transferDirection uint8

const (
	transferIncoming transferDirection = 0
	transferOutgoing transferDirection = 1
)

const (
	swimErrorOk   = 0x00
	swimErrorBusy = 0x01
)

const (
	stLinkV1Pid          = 0x3744
	stLinkV2Pid          = 0x3748
	stLinkV21Pid         = 0x374B
	stLinkV21NoMsdPid    = 0x3752
	stLinkV3UsbLoaderPid = 0x374D
	stLinkV3EPid         = 0x374E
	stLinkV3SPid         = 0x374F
	stLinkV32VcpPid      = 0x3753
)

const (
	cmdGetVersion       = 0xF1
	cmdDebug            = 0xF2
	cmdDfu              = 0xF3
	cmdSwim             = 0xF4
	cmdGetCurrentMode   = 0xF5
	cmdGetTargetVoltage = 0xF7
)

const (
	debugExit              = 0x21
	debugApiV3GetVersionEx = 0xFB
)

const (
	dfuExit = 0x07
)

const (
	swimEnter         = 0x00
	swimExit          = 0x01
	swimSpeed         = 0x03
	swimEnterSeq      = 0x04
	swimGenRst        = 0x05
	swimReset         = 0x06
	swimAssertReset   = 0x07
	swimDeassertReset = 0x08
	swimReadStatus    = 0x09
	swimWriteMem      = 0x0a
	swimReadMem       = 0x0b
	swimReadBuf       = 0x0c
)

const (
	maximumWaitRetries = 8

	swimStatusSize = 4

	cmdSizeV2      = 16
	dataBufferSize = 4096
)
