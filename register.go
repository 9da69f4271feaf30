// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Field is a named bit range inside a byte wide register.
type Field struct {
	Name   string
	Offset uint
	Width  uint
}

// Bit returns the single bit field at position n.
func Bit(n uint) Field {
	return Field{Name: strconv.Itoa(int(n)), Offset: n, Width: 1}
}

func (f Field) Mask() uint8 {
	return uint8(((1 << f.Width) - 1) << f.Offset)
}

func (f Field) Decode(raw uint8) uint8 {
	return (raw & f.Mask()) >> f.Offset
}

// Encode replaces the field's bits within raw by value. Bits of value beyond
// the field width are dropped.
func (f Field) Encode(raw uint8, value uint8) uint8 {
	return (raw &^ f.Mask()) | ((value << f.Offset) & f.Mask())
}

func (f Field) valid() bool {
	return f.Width > 0 && f.Offset+f.Width <= 8
}

// Accessor is the common part of byte wide and multi byte registers.
type Accessor interface {
	Name() string
	Address() uint32
	Status() (string, error)
}

// Register describes one byte wide hardware register. It holds no value of
// its own: every access is a transaction with the target.
type Register struct {
	probe   Probe
	name    string
	address uint32
	fields  map[string]Field
}

func NewRegister(probe Probe, name string, address uint32, fields ...Field) (*Register, error) {
	r := &Register{
		probe:   probe,
		name:    name,
		address: address,
		fields:  make(map[string]Field, len(fields)),
	}

	var used uint8

	for _, f := range fields {
		if !f.valid() {
			return nil, errors.Errorf("%s: field %s (offset %d, width %d) does not fit into a byte", name, f.Name, f.Offset, f.Width)
		}
		if _, ok := r.fields[f.Name]; ok {
			return nil, errors.Errorf("%s: duplicate field %s", name, f.Name)
		}
		if used&f.Mask() != 0 {
			return nil, errors.Errorf("%s: field %s overlaps another field", name, f.Name)
		}

		used |= f.Mask()
		r.fields[f.Name] = f
	}

	return r, nil
}

func (r *Register) Name() string {
	return r.name
}

func (r *Register) Address() uint32 {
	return r.address
}

// Field looks up a field definition by name.
func (r *Register) Field(name string) (Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Fields returns all field definitions ordered by ascending bit offset.
func (r *Register) Fields() []Field {
	fields := make([]Field, 0, len(r.fields))
	for _, f := range r.fields {
		fields = append(fields, f)
	}

	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Offset == fields[j].Offset {
			return fields[i].Name < fields[j].Name
		}
		return fields[i].Offset < fields[j].Offset
	})

	return fields
}

func (r *Register) Value() (uint8, error) {
	value, err := r.probe.ReadByteAt(r.address)
	if err != nil {
		return 0, errors.Annotatef(err, "read %s", r.name)
	}
	return value, nil
}

func (r *Register) SetValue(value uint8) error {
	if err := r.probe.WriteByteAt(r.address, value); err != nil {
		return errors.Annotatef(err, "write %s", r.name)
	}
	return nil
}

func (r *Register) Read(f Field) (uint8, error) {
	raw, err := r.Value()
	if err != nil {
		return 0, err
	}
	return f.Decode(raw), nil
}

// Write performs a read-modify-write of the field. The two transactions are
// not atomic with respect to anything else touching the register.
func (r *Register) Write(f Field, value uint8) error {
	raw, err := r.Value()
	if err != nil {
		return err
	}

	logger.Tracef("%s.%s <- %d (raw %02x -> %02x)", r.name, f.Name, value, raw, f.Encode(raw, value))

	return r.SetValue(f.Encode(raw, value))
}

func (r *Register) ReadField(name string) (uint8, error) {
	f, ok := r.fields[name]
	if !ok {
		return 0, errors.Annotatef(ErrUnknownField, "%s.%s", r.name, name)
	}
	return r.Read(f)
}

func (r *Register) WriteField(name string, value uint8) error {
	f, ok := r.fields[name]
	if !ok {
		return errors.Annotatef(ErrUnknownField, "%s.%s", r.name, name)
	}
	return r.Write(f, value)
}

func (r *Register) ReadBit(n uint) (uint8, error) {
	if n > 7 {
		return 0, errors.Annotatef(ErrUnknownField, "%s bit %d", r.name, n)
	}
	return r.Read(Bit(n))
}

func (r *Register) WriteBit(n uint, value uint8) error {
	if n > 7 {
		return errors.Annotatef(ErrUnknownField, "%s bit %d", r.name, n)
	}
	return r.Write(Bit(n), value)
}

// Status renders the raw value and every decoded field for diagnostics.
func (r *Register) Status() (string, error) {
	raw, err := r.Value()
	if err != nil {
		return "", err
	}

	lines := []string{fmt.Sprintf("%s (*%x=%02x)", r.name, r.address, raw)}
	for _, f := range r.Fields() {
		lines = append(lines, fmt.Sprintf("  %s=%d", f.Name, f.Decode(raw)))
	}

	return strings.Join(lines, "\n"), nil
}

// WideRegister is a register spanning 2 or 3 consecutive bytes, stored most
// significant byte first.
type WideRegister struct {
	probe   Probe
	name    string
	address uint32
	size    int
}

func NewWideRegister(probe Probe, name string, address uint32, size int) (*WideRegister, error) {
	if size < 2 || size > 3 {
		return nil, errors.Errorf("%s: unsupported register width %d", name, size)
	}

	return &WideRegister{probe: probe, name: name, address: address, size: size}, nil
}

func (r *WideRegister) Name() string {
	return r.name
}

func (r *WideRegister) Address() uint32 {
	return r.address
}

func (r *WideRegister) Size() int {
	return r.size
}

func (r *WideRegister) Value() (uint32, error) {
	value, err := ReadWide(r.probe, r.address, r.size)
	if err != nil {
		return 0, errors.Annotatef(err, "read %s", r.name)
	}
	return value, nil
}

func (r *WideRegister) SetValue(value uint32) error {
	if err := WriteWide(r.probe, r.address, r.size, value); err != nil {
		return errors.Annotatef(err, "write %s", r.name)
	}
	return nil
}

func (r *WideRegister) Status() (string, error) {
	value, err := r.Value()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (*%x=%0*x)", r.name, r.address, 2*r.size, value), nil
}

// RegisterGroup collects the registers of one hardware block.
type RegisterGroup struct {
	name      string
	probe     Probe
	registers map[string]Accessor
}

func NewRegisterGroup(probe Probe, name string) *RegisterGroup {
	return &RegisterGroup{
		name:      name,
		probe:     probe,
		registers: make(map[string]Accessor),
	}
}

func (g *RegisterGroup) Name() string {
	return g.name
}

// AddRegister adds a byte wide register. Register tables are static, so an
// invalid field layout panics.
func (g *RegisterGroup) AddRegister(name string, address uint32, fields ...Field) *Register {
	r, err := NewRegister(g.probe, name, address, fields...)
	if err != nil {
		panic(err)
	}

	g.registers[name] = r
	return r
}

func (g *RegisterGroup) AddWideRegister(name string, address uint32, size int) *WideRegister {
	r, err := NewWideRegister(g.probe, name, address, size)
	if err != nil {
		panic(err)
	}

	g.registers[name] = r
	return r
}

func (g *RegisterGroup) Get(name string) (Accessor, bool) {
	r, ok := g.registers[name]
	return r, ok
}

// Register returns the byte wide register called name or nil.
func (g *RegisterGroup) Register(name string) *Register {
	r, _ := g.registers[name].(*Register)
	return r
}

// Wide returns the multi byte register called name or nil.
func (g *RegisterGroup) Wide(name string) *WideRegister {
	r, _ := g.registers[name].(*WideRegister)
	return r
}

func (g *RegisterGroup) Names() []string {
	names := make([]string, 0, len(g.registers))
	for name := range g.registers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status renders every register of the group ordered by address.
func (g *RegisterGroup) Status() (string, error) {
	accessors := make([]Accessor, 0, len(g.registers))
	for _, r := range g.registers {
		accessors = append(accessors, r)
	}
	sort.Slice(accessors, func(i, j int) bool {
		return accessors[i].Address() < accessors[j].Address()
	})

	lines := []string{fmt.Sprintf("[%s]", g.name)}
	for _, r := range accessors {
		status, err := r.Status()
		if err != nil {
			return "", errors.Annotatef(err, "%s.%s", g.name, r.Name())
		}
		lines = append(lines, status)
	}

	return strings.Join(lines, "\n"), nil
}
