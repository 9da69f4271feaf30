// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
)

type RecordType uint8

const (
	RecordData RecordType = 0
	RecordEOF  RecordType = 1
)

// Record is one decoded line of an Intel hex file.
type Record struct {
	Addr uint32
	Type RecordType
	Data []byte
}

// Segment is a contiguous run of bytes to be placed at Addr.
type Segment struct {
	Addr uint32
	Data []byte
}

func (s Segment) End() uint32 {
	return s.Addr + uint32(len(s.Data))
}

func (s Segment) String() string {
	return fmt.Sprintf("%04x:%04x [%d]", s.Addr, s.End(), len(s.Data))
}

// RecordReader decodes hex records one line at a time. It reads its input
// once and cannot be rewound.
type RecordReader struct {
	scanner *bufio.Scanner
	lineNo  int
	record  Record
	err     error
}

func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{scanner: bufio.NewScanner(r)}
}

// Next advances to the next record. It returns false at the end of the input
// or on the first error, which is then available through Err.
func (rr *RecordReader) Next() bool {
	if rr.err != nil {
		return false
	}

	for rr.scanner.Scan() {
		rr.lineNo++

		line := strings.TrimSpace(rr.scanner.Text())
		if len(line) == 0 {
			continue
		}

		rr.record, rr.err = parseRecord(line, rr.lineNo)
		return rr.err == nil
	}

	if err := rr.scanner.Err(); err != nil {
		rr.err = errors.Annotatef(err, "line %d", rr.lineNo)
	}
	return false
}

func (rr *RecordReader) Record() Record {
	return rr.record
}

func (rr *RecordReader) Err() error {
	return rr.err
}

// :LLAAAATT[DD...]CC
func parseRecord(line string, lineNo int) (Record, error) {
	if line[0] != ':' {
		return Record{}, &MalformedRecordError{Line: lineNo, Reason: "invalid start of the line"}
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return Record{}, &MalformedRecordError{Line: lineNo, Reason: "error decoding record body"}
	}

	// length, address, type and checksum
	if len(raw) < 5 {
		return Record{}, &MalformedRecordError{Line: lineNo, Reason: fmt.Sprintf("too short (%d bytes)", len(raw))}
	}

	r := Record{
		Addr: uint32(raw[1])<<8 | uint32(raw[2]),
		Type: RecordType(raw[3]),
		Data: raw[4 : len(raw)-1],
	}

	if int(raw[0]) != len(r.Data) {
		return Record{}, &MalformedRecordError{
			Line:   lineNo,
			Reason: fmt.Sprintf("length mismatch (declared %d, got %d)", raw[0], len(r.Data)),
		}
	}

	return r, nil
}

// LoadMerged reads data records up to the end of file record, sorts them by
// address and merges records that exactly abut into segments. The segments do
// not overlap and are sorted by ascending address. Overlapping records are
// rejected with a MalformedRecordError.
func LoadMerged(r io.Reader) ([]Segment, error) {
	var records []Record

	rr := NewRecordReader(r)
	for rr.Next() {
		record := rr.Record()

		if record.Type == RecordEOF {
			break
		}
		if record.Type != RecordData {
			return nil, &MalformedRecordError{Line: rr.lineNo, Reason: fmt.Sprintf("invalid record type %d", record.Type)}
		}

		records = append(records, record)
	}

	if err := rr.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Addr < records[j].Addr
	})

	return mergeRecords(records)
}

func mergeRecords(records []Record) ([]Segment, error) {
	var segments []Segment
	var current *Segment

	for _, record := range records {
		if len(record.Data) == 0 {
			continue
		}
		if current != nil && record.Addr < current.End() {
			return nil, &MalformedRecordError{
				Reason: fmt.Sprintf("record @%04x overlaps previous data up to %04x", record.Addr, current.End()),
			}
		}
		if current != nil && current.End() == record.Addr {
			current.Data = append(current.Data, record.Data...)
			continue
		}

		if current != nil && len(current.Data) > 0 {
			segments = append(segments, *current)
		}
		current = &Segment{Addr: record.Addr, Data: append([]byte(nil), record.Data...)}
	}

	if current != nil && len(current.Data) > 0 {
		segments = append(segments, *current)
	}

	return segments, nil
}

func LoadMergedFile(fileName string) ([]Segment, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()

	segments, err := LoadMerged(file)
	if err != nil {
		return nil, errors.Annotatef(err, "error parsing %s", fileName)
	}
	return segments, nil
}
