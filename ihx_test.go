// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hexLine formats a record, the checksum is not checked so it is left zero.
func hexLine(addr uint16, recordType RecordType, data []byte) string {
	return fmt.Sprintf(":%02X%04X%02X%s00", len(data), addr, recordType, strings.ToUpper(hex.EncodeToString(data)))
}

func hexFile(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

const hexEOF = ":00000001FF"

func TestLoadMerged(t *testing.T) {
	records := []string{
		hexLine(0x100, RecordData, []byte{1, 2, 3, 4}),
		hexLine(0x104, RecordData, []byte{5, 6, 7, 8}),
		hexLine(0x200, RecordData, []byte{9, 10}),
	}

	expected := []Segment{
		{Addr: 0x100, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Addr: 0x200, Data: []byte{9, 10}},
	}

	segments, err := LoadMerged(strings.NewReader(hexFile(records[0], records[1], records[2], hexEOF)))
	require.NoError(t, err)
	assert.Equal(t, expected, segments)

	for _, order := range [][]int{{2, 1, 0}, {1, 2, 0}, {2, 0, 1}} {
		segments, err := LoadMerged(strings.NewReader(hexFile(records[order[0]], records[order[1]], records[order[2]], hexEOF)))
		require.NoError(t, err)
		assert.Equal(t, expected, segments, "order %v", order)
	}
}

func TestLoadMergedStopsAtEOF(t *testing.T) {
	input := hexFile(
		hexLine(0x8000, RecordData, []byte{0xAA}),
		"",
		hexEOF,
		hexLine(0x9000, RecordData, []byte{0xBB}),
		"garbage after the end",
	)

	segments, err := LoadMerged(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Segment{{Addr: 0x8000, Data: []byte{0xAA}}}, segments)
}

func TestLoadMergedLengthMismatch(t *testing.T) {
	input := hexFile(
		hexLine(0x100, RecordData, []byte{1, 2, 3, 4}),
		":04010400050607"+"00",
		hexEOF,
	)

	segments, err := LoadMerged(strings.NewReader(input))
	require.Error(t, err)
	assert.Nil(t, segments)

	recordErr, ok := err.(*MalformedRecordError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 2, recordErr.Line)
}

func TestLoadMergedOverlap(t *testing.T) {
	input := hexFile(
		hexLine(0x102, RecordData, []byte{9, 9, 9, 9}),
		hexLine(0x100, RecordData, []byte{1, 2, 3, 4}),
		hexEOF,
	)

	segments, err := LoadMerged(strings.NewReader(input))
	require.Error(t, err)
	assert.Nil(t, segments)

	_, ok := err.(*MalformedRecordError)
	assert.True(t, ok, "got %v", err)
	assert.Contains(t, err.Error(), "overlaps")
}

func TestLoadMergedSkipsEmptyRecords(t *testing.T) {
	input := hexFile(
		hexLine(0x100, RecordData, []byte{1, 2, 3, 4}),
		hexLine(0x102, RecordData, nil),
		hexEOF,
	)

	segments, err := LoadMerged(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Segment{{Addr: 0x100, Data: []byte{1, 2, 3, 4}}}, segments)
}

func TestLoadMergedMalformed(t *testing.T) {
	for name, line := range map[string]string{
		"missing colon":    "04010000010203040",
		"odd hex digits":   ":0401000001020304000",
		"not hex":          ":04010000010203ZZ00",
		"too short":        ":0401",
		"unsupported type": hexLine(0, 4, []byte{0, 0}),
	} {
		_, err := LoadMerged(strings.NewReader(hexFile(line, hexEOF)))
		_, ok := err.(*MalformedRecordError)
		assert.True(t, ok, "%s: got %v", name, err)
	}
}

func TestRecordReader(t *testing.T) {
	rr := NewRecordReader(strings.NewReader(hexFile(
		hexLine(0x10, RecordData, []byte{0xDE, 0xAD}),
		hexEOF,
	)))

	require.True(t, rr.Next())
	assert.Equal(t, Record{Addr: 0x10, Type: RecordData, Data: []byte{0xDE, 0xAD}}, rr.Record())

	require.True(t, rr.Next())
	assert.Equal(t, RecordEOF, rr.Record().Type)

	assert.False(t, rr.Next())
	assert.NoError(t, rr.Err())
}

func TestLoadMergedFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "goswim")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	fileName := filepath.Join(dir, "image.ihx")
	require.NoError(t, ioutil.WriteFile(fileName, []byte(hexFile(hexLine(0x8000, RecordData, []byte{0x82, 0x00}), hexEOF)), 0644))

	segments, err := LoadMergedFile(fileName)
	require.NoError(t, err)
	assert.Equal(t, []Segment{{Addr: 0x8000, Data: []byte{0x82, 0x00}}}, segments)

	_, err = LoadMergedFile(filepath.Join(dir, "missing.ihx"))
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
