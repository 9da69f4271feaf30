// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"io"

	"github.com/google/gousb"
	"github.com/juju/errors"
)

var usbCtx *gousb.Context = nil

func InitializeUSB() error {
	if usbCtx == nil {
		usbCtx = gousb.NewContext()

		if usbCtx != nil {
			logger.Debug("Initialized libsusb...")
			return nil
		} else {
			return errors.New("Could not initialize libusb!")
		}
	} else {
		logger.Warn("USB already initialized!")
		return nil
	}
}

func CloseUSB() {
	if usbCtx != nil {
		usbCtx.Close()
		usbCtx = nil
	} else {
		logger.Warn("Could not close uninitialized usb context")
	}
}

func usbFindDevices(vids []gousb.ID, pids []gousb.ID) ([]*gousb.Device, error) {
	if usbCtx == nil {
		return nil, errors.New("usb not initialized, call InitializeUSB first")
	}

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if idExists(vids, desc.Vendor) && idExists(pids, desc.Product) {
			logger.Infof("Found USB device [%04x:%04x] on bus %03d:%03d", uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address)

			return true
		} else {
			return false
		}
	})

	if err == nil {
		logger.Infof("Found %d matching devices based on vendor and product id list", len(devices))
		return devices, nil
	} else {
		logger.Error("Got error during usb device scan", err)

		for _, dev := range devices {
			dev.Close()
		}
		return nil, errors.Trace(err)
	}
}

func usbWrite(endpoint io.Writer, buffer []byte) (int, error) {
	bytesWritten, err := endpoint.Write(buffer)

	if err != nil {
		return -1, errors.Trace(err)
	} else {
		logger.Tracef("Wrote %d bytes to endpoint", bytesWritten)
		return bytesWritten, nil
	}
}

func usbRead(endpoint io.Reader, buffer []byte) (int, error) {
	bytesRead, err := endpoint.Read(buffer)

	if err != nil {
		return -1, errors.Trace(err)
	} else {
		logger.Tracef("Read %d byte from in endpoint", bytesRead)
		return bytesRead, nil
	}
}
