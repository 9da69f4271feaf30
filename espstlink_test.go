// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"bytes"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSerial replays canned bridge responses and records everything sent.
type fakeSerial struct {
	rx     bytes.Buffer
	tx     bytes.Buffer
	closed bool
}

func (f *fakeSerial) Read(p []byte) (int, error) {
	// deliver at most a few bytes per call like a slow uart
	if len(p) > 3 {
		p = p[:3]
	}
	return f.rx.Read(p)
}

func (f *fakeSerial) Write(p []byte) (int, error) {
	return f.tx.Write(p)
}

func (f *fakeSerial) Close() error {
	f.closed = true
	return nil
}

func newFakeEspStLink(responses ...[]byte) (*EspStLink, *fakeSerial) {
	conn := &fakeSerial{}
	for _, r := range responses {
		conn.rx.Write(r)
	}
	return newEspStLink(conn, 20*time.Millisecond), conn
}

func TestEspStLinkVersion(t *testing.T) {
	e, conn := newFakeEspStLink([]byte{0xFF, 0x00, 0x01, 0x02})

	require.NoError(t, e.fetchVersion())
	assert.Equal(t, "1.2", e.Version())
	assert.Equal(t, []byte{0xFF}, conn.tx.Bytes())
}

func TestEspStLinkRead(t *testing.T) {
	e, conn := newFakeEspStLink([]byte{0x01, 0x00, 0x04, 0x00, 0x80, 0x10, 0xDE, 0xAD, 0xBE, 0xEF})

	data, err := e.ReadBytes(0x8010, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, data)
	assert.Equal(t, []byte{0x01, 0x04, 0x00, 0x80, 0x10}, conn.tx.Bytes())
}

func TestEspStLinkWrite(t *testing.T) {
	e, conn := newFakeEspStLink([]byte{0x02, 0x00, 0x02, 0x00, 0x7F, 0x80})

	require.NoError(t, e.WriteBytes(0x7F80, []byte{0xA0, 0x55}))
	assert.Equal(t, []byte{0x02, 0x02, 0x00, 0x7F, 0x80, 0xA0, 0x55}, conn.tx.Bytes())
}

func TestEspStLinkDeviceError(t *testing.T) {
	e, _ := newFakeEspStLink([]byte{0x01, 0xFF, 0x00, 0x04})

	_, err := e.ReadBytes(0x8000, 1)
	require.Error(t, err)

	deviceErr, ok := errors.Cause(err).(*DeviceError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, ErrorNack, deviceErr.Code)
}

func TestEspStLinkProtocolErrors(t *testing.T) {
	for name, response := range map[string][]byte{
		"wrong command echo": {0x02, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00},
		"bad status":         {0x01, 0x42},
		"wrong address echo": {0x01, 0x00, 0x01, 0x00, 0x90, 0x00, 0x00},
		"truncated":          {0x01, 0x00, 0x01},
	} {
		e, _ := newFakeEspStLink(response)

		_, err := e.ReadBytes(0x8000, 1)
		require.Error(t, err, name)

		deviceErr, ok := errors.Cause(err).(*DeviceError)
		require.True(t, ok, "%s: got %v", name, err)
		assert.Equal(t, ErrorProtocolMismatch, deviceErr.Code, name)
	}
}

func TestEspStLinkTransferLimit(t *testing.T) {
	e, conn := newFakeEspStLink()

	_, err := e.ReadBytes(0x8000, MaxTransfer+1)
	assert.Equal(t, ErrTransferTooLarge, errors.Cause(err))

	err = e.WriteBytes(0x8000, nil)
	assert.Equal(t, ErrTransferTooLarge, errors.Cause(err))

	assert.Zero(t, conn.tx.Len())
}

func TestEspStLinkController(t *testing.T) {
	e, conn := newFakeEspStLink(
		[]byte{0xFD, 0x00},
		[]byte{0xFE, 0x00, 0x00, 0x10},
		[]byte{0xFD, 0x00},
		[]byte{0xFD, 0x00},
		[]byte{0x00, 0x00},
	)

	require.NoError(t, e.Reset(ResetAssert))
	require.NoError(t, e.SwimEntry())
	require.NoError(t, e.Reset(ResetRelease))
	require.NoError(t, e.Reset(ResetFloat))
	require.NoError(t, e.SoftReset())

	assert.Equal(t, []byte{0xFD, 0x01, 0xFE, 0xFD, 0x00, 0xFD, 0xFF, 0x00}, conn.tx.Bytes())

	require.NoError(t, e.Close())
	assert.True(t, conn.closed)
}

func TestEspStLinkSession(t *testing.T) {
	e, conn := newFakeEspStLink(
		[]byte{0xFD, 0x00},
		[]byte{0xFE, 0x00, 0x00, 0x10},
		[]byte{0x02, 0x00, 0x01, 0x00, 0x7F, 0x80},
		[]byte{0xFD, 0x00},
	)

	s := NewSession(e)
	require.NoError(t, s.Init(InitOptions{SwimEntry: true, Reset: true}))

	assert.Equal(t, []byte{0xFD, 0x01, 0xFE, 0x02, 0x01, 0x00, 0x7F, 0x80, 0xA0, 0xFD, 0x00}, conn.tx.Bytes())
}
