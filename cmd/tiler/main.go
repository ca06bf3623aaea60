package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/tiler/compiler"
	"github.com/slowlang/tiler/compiler/format"
	"github.com/slowlang/tiler/compiler/front"
	"github.com/slowlang/tiler/compiler/interp"
)

func main() {
	fmtCmd := &cli.Command{
		Name:        "fmt",
		Description: "reformat mid-level IR files",
		Action:      fmtAct,
		Args:        cli.Args{},
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile mid-level IR into x86-64 assembly",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output file, stdout if empty"),
		},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile file and run entry function in the interpreter: run <file> [args...]",
		Action:      runAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("entry,e", "main", "function to call"),
			cli.NewFlag("max-steps", interp.DefaultMaxSteps, "interpreter step limit, 0 is unlimited"),
		},
	}

	app := &cli.Command{
		Name:        "tiler",
		Description: "tiler compiles mid-level IR with cost-based tiling and iterated register coalescing",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("check-invariant", false, "check register allocator invariants after every step"),
			cli.NewFlag("comments", true, "keep comments in generated assembly"),
			cli.NewFlag("allocator", compiler.AllocatorIRC, "register allocator: irc or naive"),
			cli.NewFlag("verbosity,v", "", "tlog verbosity topics: tiling,regalloc,dump_asm,interp_trace"),
		},
		Commands: []*cli.Command{
			fmtCmd,
			compileCmd,
			runCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	if v := c.String("verbosity"); v != "" {
		tlog.SetVerbosity(v)
	}

	return nil
}

func config(c *cli.Command) compiler.Config {
	return compiler.Config{
		CheckInvariant: c.Bool("check-invariant"),
		RemoveComments: !c.Bool("comments"),
		Allocator:      c.String("allocator"),
	}
}

func fmtAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		u, err := front.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		b, err := format.Format(ctx, nil, u)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		_, err = os.Stdout.Write(b)
		if err != nil {
			return err
		}
	}

	return nil
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	cfg := config(c)

	var out []byte

	for _, a := range c.Args {
		p, err := compiler.CompileFile(ctx, a, cfg)
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		out = p.AppendText(out)
	}

	if name := c.String("output"); name != "" {
		err = os.WriteFile(name, out, 0o644)
		if err != nil {
			return errors.Wrap(err, "write output")
		}

		return nil
	}

	_, err = os.Stdout.Write(out)

	return err
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if len(c.Args) == 0 {
		return errors.New("file expected")
	}

	p, err := compiler.CompileFile(ctx, c.Args[0], config(c))
	if err != nil {
		return errors.Wrap(err, "compile %v", c.Args[0])
	}

	var args []int64

	for _, a := range c.Args[1:] {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return errors.Wrap(err, "parse arg %q", a)
		}

		args = append(args, v)
	}

	m := interp.New(p)
	m.MaxSteps = c.Int("max-steps")

	res, err := m.Call(ctx, c.String("entry"), args...)
	fmt.Printf("%s", res.Output)

	if err != nil {
		return errors.Wrap(err, "run")
	}

	fmt.Printf("rax: %d (%d steps)\n", res.RAX, res.Steps)

	return nil
}
