package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/back"
	"github.com/slowlang/tiler/compiler/front"
)

type Config = back.Config

const (
	AllocatorIRC   = back.AllocatorIRC
	AllocatorNaive = back.AllocatorNaive
)

func CompileFile(ctx context.Context, name string, cfg Config) (p *asm.Program, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, cfg)
}

func Compile(ctx context.Context, name string, text []byte, cfg Config) (p *asm.Program, err error) {
	u, err := front.Parse(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse text")
	}

	p, err = back.Generate(ctx, u, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	return p, nil
}
