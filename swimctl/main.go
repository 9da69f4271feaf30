// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bbnote/goswim"
	"github.com/bbnote/goswim/cli"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var (
	logger     *logrus.Logger
	probeFlags cli.ProbeFlags

	exitProgram chan bool
)

type command struct {
	usage string
	help  string
	// reset holds the target in reset while attaching
	reset bool
	run   func(s *goswim.Session, args []string) error
}

var commands = map[string]command{
	"dump":          {"dump <addr> <length> [file]", "read memory, hex dump or raw into file", true, dump},
	"rop":           {"rop [on|off]", "show, enable or disable readout protection", false, readoutProtection},
	"factory-reset": {"factory-reset", "restore the default option bytes", true, factoryReset},
	"reset":         {"reset", "reset the target and let it run", true, resetAndRun},
	"stall":         {"stall", "stall the cpu", false, stall},
	"continue":      {"continue", "release a stalled cpu", false, cont},
	"step":          {"step [count]", "execute single instructions", false, step},
	"trace":         {"trace", "single step and print the cpu state until interrupted", false, trace},
	"break":         {"break <mode> <bk1> [bk2]", "arm a hardware breakpoint", false, setBreakpoint},
	"clear-break":   {"clear-break", "disable the hardware breakpoint", false, clearBreakpoint},
	"status":        {"status", "print cpu, debug module and flash registers", false, status},
	"gpio":          {"gpio <pin> [high|low|in]", "read or drive a port pin, e.g. PD3", false, gpio},
	"voltage":       {"voltage", "print the target voltage measured by an st-link", false, voltage},
	"resync":        {"resync", "resynchronise the swim line of an st-link", false, resync},
}

func parseNumber(s string, bits int) (uint32, error) {
	value, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.Annotatef(err, "invalid number %q", s)
	}
	return uint32(value), nil
}

func setUpSignalHandler() {
	signals := make(chan os.Signal, 1)
	exitProgram = make(chan bool, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		exitProgram <- true
	}()
}

func interrupted() bool {
	select {
	case <-exitProgram:
		return true
	default:
		return false
	}
}

func dump(s *goswim.Session, args []string) error {
	if len(args) < 2 {
		return errors.New("address and length required")
	}

	addr, err := parseNumber(args[0], 24)
	if err != nil {
		return err
	}
	length, err := parseNumber(args[1], 24)
	if err != nil {
		return err
	}

	data, err := s.ReadMemory(addr, int(length))
	if err != nil {
		return err
	}

	if len(args) > 2 {
		return errors.Trace(ioutil.WriteFile(args[2], data, 0644))
	}

	dumper := hex.Dumper(os.Stdout)
	defer dumper.Close()

	_, err = dumper.Write(data)
	return errors.Trace(err)
}

func printReadoutProtection(s *goswim.Session) error {
	text, err := s.Options.Register("ROP").Status()
	if err != nil {
		return err
	}

	enabled, err := s.Options.ReadoutProtection()
	if err != nil {
		return err
	}

	fmt.Printf("%s, readout protection %v\n", text, enabled)
	return nil
}

func readoutProtection(s *goswim.Session, args []string) error {
	if len(args) > 1 || (len(args) == 1 && args[0] != "on" && args[0] != "off") {
		return errors.New("expected on or off")
	}

	if err := printReadoutProtection(s); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	if err := s.SetReadoutProtection(args[0] == "on"); err != nil {
		return err
	}

	// the target went through reset, the link may not have survived it
	if err := printReadoutProtection(s); err != nil {
		logger.Warn("could not read back option bytes after reset: ", err)
	}
	return nil
}

func factoryReset(s *goswim.Session, args []string) error {
	return s.FactoryReset()
}

func resetAndRun(s *goswim.Session, args []string) error {
	return s.Debugger.Resume()
}

func stall(s *goswim.Session, args []string) error {
	return s.Debugger.Pause()
}

func cont(s *goswim.Session, args []string) error {
	return s.Debugger.Resume()
}

func printState(s *goswim.Session) error {
	state, err := s.CPU.State()
	if err != nil {
		return err
	}
	fmt.Println(state)
	return nil
}

func step(s *goswim.Session, args []string) error {
	count := uint32(1)

	if len(args) > 0 {
		var err error
		if count, err = parseNumber(args[0], 32); err != nil {
			return err
		}
	}

	for i := uint32(0); i < count; i++ {
		stepped, err := s.Debugger.Step()
		if err != nil {
			return err
		}
		if !stepped {
			logger.Warn("cpu stopped by breakpoint")
		}
	}

	return printState(s)
}

func trace(s *goswim.Session, args []string) error {
	setUpSignalHandler()

	for !interrupted() {
		if err := printState(s); err != nil {
			return err
		}
		if _, err := s.Debugger.Step(); err != nil {
			return err
		}
	}

	return nil
}

func setBreakpoint(s *goswim.Session, args []string) error {
	if len(args) < 2 {
		return errors.New("mode and address required")
	}

	bk1, err := parseNumber(args[1], 24)
	if err != nil {
		return err
	}

	var bk2 uint32
	if len(args) > 2 {
		if bk2, err = parseNumber(args[2], 24); err != nil {
			return err
		}
	}

	return s.Debugger.SetBreakpoint(args[0], bk1, bk2)
}

func clearBreakpoint(s *goswim.Session, args []string) error {
	return s.Debugger.ClearBreakpoint()
}

func status(s *goswim.Session, args []string) error {
	for _, group := range []*goswim.RegisterGroup{s.Debugger.RegisterGroup, s.Flash.RegisterGroup} {
		text, err := group.Status()
		if err != nil {
			return err
		}
		fmt.Println(text)
	}

	mode, bk1, bk2, ok, err := s.Debugger.Breakpoint()
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("breakpoint: %s BK1=%06x BK2=%06x\n", mode, bk1, bk2)
	} else {
		fmt.Println("breakpoint: unnamed control pattern")
	}

	return printState(s)
}

func gpio(s *goswim.Session, args []string) error {
	if len(args) < 1 || len(args[0]) != 3 || strings.ToUpper(args[0][:1]) != "P" {
		return errors.New("pin required, e.g. PD3")
	}

	base, ok := goswim.PortBase(args[0][1])
	if !ok {
		return errors.Errorf("unknown port in %s", args[0])
	}
	pin, err := parseNumber(args[0][2:], 3)
	if err != nil {
		return err
	}

	port := goswim.NewPort(s.Probe(), base)

	if len(args) == 1 {
		high, err := port.Get(uint(pin))
		if err != nil {
			return err
		}
		fmt.Printf("%s=%v\n", strings.ToUpper(args[0]), high)
		return nil
	}

	switch args[1] {
	case "high", "low":
		if err := port.SetOutput(uint(pin), true, false); err != nil {
			return err
		}
		return port.Set(uint(pin), args[1] == "high")
	case "in":
		return port.SetInput(uint(pin), true, false)
	default:
		return errors.Errorf("unknown pin state %s", args[1])
	}
}

func voltage(s *goswim.Session, args []string) error {
	meter, ok := s.Probe().(interface {
		GetTargetVoltage() (float32, error)
	})
	if !ok {
		return errors.New("probe cannot measure the target voltage")
	}

	v, err := meter.GetTargetVoltage()
	if err != nil {
		return err
	}

	fmt.Printf("%.2fV\n", v)
	return nil
}

func resync(s *goswim.Session, args []string) error {
	return s.Resync()
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: swimctl [flags] <command> [args]\n\ncommands:\n")
	for _, name := range []string{"dump", "rop", "factory-reset", "reset", "stall", "continue",
		"step", "trace", "break", "clear-break", "status", "gpio", "voltage", "resync"} {
		fmt.Fprintf(os.Stderr, "  %-26s %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(os.Stderr, "\nbreakpoint modes:\n")
	for _, mode := range goswim.BreakpointModes() {
		fmt.Fprintf(os.Stderr, "  %q\n", mode.Name)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n%s", fs.FlagUsages())
}

func main() {
	fs := pflag.NewFlagSet("swimctl", pflag.ExitOnError)
	probeFlags.Register(fs)
	fs.SetInterspersed(false)
	fs.Usage = func() { usage(fs) }

	if err := cli.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if fs.NArg() == 0 {
		usage(fs)
		os.Exit(2)
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", fs.Arg(0))
		usage(fs)
		os.Exit(2)
	}

	var err error
	if logger, err = cli.NewLogger(probeFlags.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	session, err := probeFlags.OpenSession(goswim.InitOptions{SwimEntry: true, Reset: cmd.reset})
	if err != nil {
		logger.Fatal(errors.ErrorStack(err))
	}

	err = cmd.run(session, fs.Args()[1:])

	if closeErr := session.Close(); closeErr != nil {
		logger.Warn("closing probe: ", closeErr)
	}

	if err != nil {
		logger.Error(errors.ErrorStack(err))
		os.Exit(1)
	}
}
