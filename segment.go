// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/juju/errors"
)

// PageWriter programs a single aligned flash page.
type PageWriter interface {
	WritePage(addr uint32, block []byte) error
}

// ProgressFunc is called after every programmed page.
type ProgressFunc func(segment Segment, pageAddr uint32, pagesDone int, pagesTotal int)

// Programmer writes arbitrary byte ranges to flash. Partial pages are
// completed with the current target contents so callers need not care about
// page boundaries. The program area has to be unlocked beforehand.
type Programmer struct {
	probe    Probe
	pages    PageWriter
	Progress ProgressFunc
}

func NewProgrammer(probe Probe, pages PageWriter) *Programmer {
	return &Programmer{probe: probe, pages: pages}
}

// pad extends data at both ends to page boundaries with bytes read from the
// target. All reads happen before anything is written.
func (p *Programmer) pad(addr uint32, data []byte) (uint32, []byte, error) {
	if missing := addr % PageSize; missing != 0 {
		addr -= missing

		head, err := p.probe.ReadBytes(addr, int(missing))
		if err != nil {
			return 0, nil, errors.Annotatef(err, "read page head @%04x", addr)
		}

		data = append(head, data...)
	}

	if missing := len(data) % PageSize; missing != 0 {
		tailAddr := addr + uint32(len(data))

		tail, err := p.probe.ReadBytes(tailAddr, PageSize-missing)
		if err != nil {
			return 0, nil, errors.Annotatef(err, "read page tail @%04x", tailAddr)
		}

		data = append(data, tail...)
	}

	return addr, data, nil
}

func (p *Programmer) WriteSegment(addr uint32, data []byte) error {
	return p.writeSegment(Segment{Addr: addr, Data: data})
}

func (p *Programmer) writeSegment(segment Segment) error {
	if len(segment.Data) == 0 {
		return nil
	}

	addr, data, err := p.pad(segment.Addr, append([]byte(nil), segment.Data...))
	if err != nil {
		return err
	}

	pages := len(data) / PageSize
	logger.Debugf("writing %s as %d pages from @%04x", segment, pages, addr)

	for i := 0; i < pages; i++ {
		pageAddr := addr + uint32(i*PageSize)

		if err := p.pages.WritePage(pageAddr, data[i*PageSize:(i+1)*PageSize]); err != nil {
			return errors.Trace(err)
		}

		if p.Progress != nil {
			p.Progress(segment, pageAddr, i+1, pages)
		}
	}

	return nil
}

// WriteSegments writes the segments in the given order, stopping at the first
// failure.
func (p *Programmer) WriteSegments(segments []Segment) error {
	for _, segment := range segments {
		logger.Infof("%s\t%d blocks (%d bytes)", segment, len(segment.Data)/PageSize, len(segment.Data))

		if err := p.writeSegment(segment); err != nil {
			return errors.Annotatef(err, "segment %s", segment)
		}
	}
	return nil
}
