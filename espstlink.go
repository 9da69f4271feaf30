// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"fmt"
	"io"
	"time"

	"github.com/cesanta/go-serial/serial"
	"github.com/juju/errors"
)

// serial bridge commands
const (
	espCmdSoftReset = 0x00
	espCmdRead      = 0x01
	espCmdWrite     = 0x02
	espCmdReset     = 0xFD
	espCmdSwimEntry = 0xFE
	espCmdVersion   = 0xFF
)

const (
	espStatusOk    = 0x00
	espStatusError = 0xFF

	// reset argument configuring NRST as input
	espResetFloat = 0xFF
)

const (
	DefaultEspBaudRate = 115200
	DefaultEspTimeout  = 500 * time.Millisecond

	espInterCharacterTimeout = 100 * time.Millisecond
)

type EspStLinkConfig struct {
	Port     string
	BaudRate uint
	Timeout  time.Duration // overall time to wait for one response
}

func NewEspStLinkConfig(port string) *EspStLinkConfig {
	return &EspStLinkConfig{
		Port:     port,
		BaudRate: DefaultEspBaudRate,
		Timeout:  DefaultEspTimeout,
	}
}

// EspStLink is a SWIM bridge running on an ESP8266 attached through a serial
// port. It implements Probe and Controller.
type EspStLink struct {
	conn    io.ReadWriteCloser
	timeout time.Duration

	major byte
	minor byte
}

// OpenEspStLink opens the serial port and checks that a bridge firmware
// answers on it.
func OpenEspStLink(config *EspStLinkConfig) (*EspStLink, error) {
	logger.Debugf("opening %s...", config.Port)

	s, err := serial.Open(serial.OpenOptions{
		PortName:              config.Port,
		BaudRate:              config.BaudRate,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		InterCharacterTimeout: uint(espInterCharacterTimeout / time.Millisecond),
		MinimumReadSize:       0,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", config.Port)
	}

	// throw away whatever the bridge printed while booting
	s.Flush()

	e := newEspStLink(s, config.Timeout)

	if err := e.fetchVersion(); err != nil {
		s.Close()
		return nil, errors.Annotatef(err, "no esp-stlink firmware on %s", config.Port)
	}

	logger.Infof("esp-stlink firmware %s on %s", e.Version(), config.Port)

	return e, nil
}

func newEspStLink(conn io.ReadWriteCloser, timeout time.Duration) *EspStLink {
	if timeout <= 0 {
		timeout = DefaultEspTimeout
	}
	return &EspStLink{conn: conn, timeout: timeout}
}

// Version returns the firmware version as reported while opening.
func (e *EspStLink) Version() string {
	return fmt.Sprintf("%d.%d", e.major, e.minor)
}

func (e *EspStLink) fetchVersion() error {
	payload, err := e.transact([]byte{espCmdVersion}, 2)
	if err != nil {
		return err
	}

	e.major, e.minor = payload[0], payload[1]
	return nil
}

func (e *EspStLink) Close() error {
	return errors.Trace(e.conn.Close())
}

// readFull reads len(buffer) bytes. Serial reads time out as empty reads, so
// those are retried until the response deadline passes.
func (e *EspStLink) readFull(buffer []byte) error {
	deadline := time.Now().Add(e.timeout)
	read := 0

	for read < len(buffer) {
		n, err := e.conn.Read(buffer[read:])
		read += n

		if err != nil && err != io.EOF {
			return errors.Trace(err)
		}

		if n == 0 {
			if time.Now().After(deadline) {
				return newDeviceError(ErrorProtocolMismatch,
					fmt.Sprintf("timeout after %d of %d response bytes", read, len(buffer)), buffer[:read])
			}
			time.Sleep(time.Millisecond)
		}
	}

	return nil
}

// transact sends cmd and reads the response. Every response starts with the
// command byte and a status byte. On success memory commands echo their
// length and address, followed by extra payload bytes which are returned.
func (e *EspStLink) transact(cmd []byte, extra int) ([]byte, error) {
	logger.Tracef("esp-stlink > % x", cmd)

	if _, err := e.conn.Write(cmd); err != nil {
		return nil, errors.Annotate(err, "write command")
	}

	header := make([]byte, 2)
	if err := e.readFull(header); err != nil {
		return nil, err
	}

	if header[0] != cmd[0] {
		return nil, newDeviceError(ErrorProtocolMismatch,
			fmt.Sprintf("expected command %02x but got %02x", cmd[0], header[0]), header)
	}

	switch header[1] {
	case espStatusOk:

	case espStatusError:
		code := make([]byte, 2)
		if err := e.readFull(code); err != nil {
			return nil, err
		}

		deviceCode := DeviceErrorCode(-(int(code[0])<<8 | int(code[1])))
		return nil, newDeviceError(deviceCode, fmt.Sprintf("command %02x failed: %s", cmd[0], deviceCode), nil)

	default:
		return nil, newDeviceError(ErrorProtocolMismatch,
			fmt.Sprintf("unexpected status %02x", header[1]), header)
	}

	var args []byte
	switch cmd[0] {
	case espCmdRead, espCmdWrite:
		args = cmd[1:5]
	}

	response := make([]byte, len(args)+extra)
	if err := e.readFull(response); err != nil {
		return nil, err
	}

	logger.Tracef("esp-stlink < % x", response)

	for i := range args {
		if response[i] != args[i] {
			return nil, newDeviceError(ErrorProtocolMismatch, "command arguments not echoed", response)
		}
	}

	return response[len(args):], nil
}

func espAddressCommand(cmd byte, addr uint32, length int) []byte {
	buffer := make([]byte, 5)
	buffer[0] = cmd
	buffer[1] = byte(length)
	addressToBigEndian24(buffer[2:], addr)
	return buffer
}

func (e *EspStLink) ReadByteAt(addr uint32) (byte, error) {
	data, err := e.ReadBytes(addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (e *EspStLink) ReadBytes(addr uint32, length int) ([]byte, error) {
	if err := checkTransferSize(length); err != nil {
		return nil, err
	}

	data, err := e.transact(espAddressCommand(espCmdRead, addr, length), length)

	return data, errors.Annotatef(err, "read %d bytes @%06x", length, addr)
}

func (e *EspStLink) WriteByteAt(addr uint32, value byte) error {
	return e.WriteBytes(addr, []byte{value})
}

func (e *EspStLink) WriteBytes(addr uint32, data []byte) error {
	if err := checkTransferSize(len(data)); err != nil {
		return err
	}

	cmd := append(espAddressCommand(espCmdWrite, addr, len(data)), data...)

	_, err := e.transact(cmd, 0)

	return errors.Annotatef(err, "write %d bytes @%06x", len(data), addr)
}

func (e *EspStLink) Reset(line ResetLine) error {
	var arg byte

	switch line {
	case ResetAssert:
		arg = 1
	case ResetRelease:
		arg = 0
	case ResetFloat:
		arg = espResetFloat
	default:
		return errors.Errorf("invalid reset line state %d", line)
	}

	_, err := e.transact([]byte{espCmdReset, arg}, 0)
	return errors.Annotate(err, "reset")
}

func (e *EspStLink) SwimEntry() error {
	result, err := e.transact([]byte{espCmdSwimEntry}, 2)
	if err != nil {
		return errors.Annotate(err, "swim entry")
	}

	logger.Debugf("swim entry returned %d", convertToUint16(result, bigEndian))
	return nil
}

func (e *EspStLink) SoftReset() error {
	_, err := e.transact([]byte{espCmdSoftReset}, 0)
	return errors.Annotate(err, "soft reset")
}
