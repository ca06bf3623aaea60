package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/tiler/compiler/front"
	"github.com/slowlang/tiler/compiler/ir"
)

const text = `global hello = "hi\n"

func f(a, b) int {
	x = (a + b) * 2 - -3
	mem[x + 8] = a < b
	r = call @f(a ^ 1, mem[x])
	if r goto L
	call @_builtin_println(@hello)
L:
	return 0 - r
}

func g() {
	y = a - (b - c)
	goto END
END:
	return
}
`

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	u, err := front.Parse(ctx, "text", []byte(text))
	require.NoError(t, err)

	b, err := Format(ctx, nil, u)
	require.NoError(t, err)
	assert.Equal(t, text, string(b))

	u2, err := front.Parse(ctx, "formatted", b)
	require.NoError(t, err)

	b2, err := Format(ctx, nil, u2)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(b2))
}

func TestFormatExpr(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		x   ir.Expr
		exp string
	}{
		{ir.Bin(ir.Mul, ir.Bin(ir.Add, ir.T("a"), ir.C(1)), ir.T("b")), "(a + 1) * b"},
		{ir.Bin(ir.Add, ir.T("a"), ir.Bin(ir.Mul, ir.C(1), ir.T("b"))), "a + 1 * b"},
		{ir.Bin(ir.Sub, ir.Bin(ir.Sub, ir.T("a"), ir.T("b")), ir.T("c")), "a - b - c"},
		{ir.Bin(ir.Sub, ir.T("a"), ir.Bin(ir.Sub, ir.T("b"), ir.T("c"))), "a - (b - c)"},
		{ir.M(ir.Bin(ir.Add, ir.N("g"), ir.C(8))), "mem[@g + 8]"},
	} {
		b, err := Format(ctx, nil, tc.x)
		require.NoError(t, err)
		assert.Equal(t, tc.exp, string(b))
	}

	_, err := Format(ctx, nil, ir.Bin("?", ir.C(1), ir.C(2)))
	assert.Error(t, err)

	_, err = Format(ctx, nil, 5)
	assert.Error(t, err)
}
