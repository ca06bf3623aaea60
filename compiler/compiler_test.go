package compiler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/tiler/compiler/interp"
)

const programs = `
global hello = "hello"

func factorial(n, acc) int {
	if n == 0 goto RETURN_ACC
	r = call @factorial(n - 1, acc * n)
	return r
RETURN_ACC:
	return acc
}

func sum(n) int {
	s = 0
	i = 0
LOOP:
	if i > n goto END
	s = s + i
	i = i + 1
	goto LOOP
END:
	return s
}

func divmod(a, b) int {
	q = a / b
	m = a % b
	lt = a < b
	return q * 100 + m * 10 + lt
}

func many(a, b, c, d, e, f, g, h) int {
	return a + b * 2 + c * 3 + d * 4 + e * 5 + f * 6 + g * 7 + h * 8
}

func callMany(x) int {
	r = call @many(x, 1, 2, 3, 4, 5, 6, 7)
	return r
}

func memory() int {
	p = call @_builtin_malloc(24)
	mem[p] = 3
	mem[p + 8] = 4
	mem[p + 16] = mem[p] * mem[p + 8]
	return mem[p + 16]
}

func strings() int {
	call @_builtin_println(@hello)
	s = call @_builtin_intToString(42)
	t = call @_builtin_stringConcat(@hello, s)
	call @_builtin_println(t)
	v = call @_builtin_stringToInt(s)
	return v + 1
}

func nothing(x) {
	if x == 0 goto DONE
	call @_builtin_println(@hello)
DONE:
	return
}
`

func configs() map[string]Config {
	return map[string]Config{
		"irc":          {CheckInvariant: true},
		"irc_comments": {CheckInvariant: true, RemoveComments: true},
		"naive":        {Allocator: "naive"},
	}
}

func TestPrograms(t *testing.T) {
	for name, cfg := range configs() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p, err := Compile(ctx, "programs.ir", []byte(programs), cfg)
			require.NoError(t, err)

			run := func(entry string, args ...int64) interp.Result {
				res, err := interp.Run(ctx, p, entry, args...)
				require.NoError(t, err, "%v %v", entry, args)

				return res
			}

			assert.Equal(t, int64(120), run("factorial", 5, 1).RAX)
			assert.Equal(t, int64(1), run("factorial", 0, 1).RAX)
			assert.Equal(t, int64(55), run("sum", 10).RAX)
			assert.Equal(t, int64(0), run("sum", -1).RAX)
			assert.Equal(t, int64(3*100+2*10+0), run("divmod", 17, 5).RAX)
			assert.Equal(t, int64(0*100+3*10+1), run("divmod", 3, 5).RAX)
			assert.Equal(t, int64(-3*100-1*10+1), run("divmod", -7, 2).RAX)
			assert.Equal(t, int64(178), run("callMany", 10).RAX)
			assert.Equal(t, int64(12), run("memory").RAX)

			res := run("strings")
			assert.Equal(t, int64(43), res.RAX)
			assert.Equal(t, "hello\nhello42\n", res.Output)

			assert.Equal(t, "", run("nothing", 0).Output)
			assert.Equal(t, "hello\n", run("nothing", 1).Output)

			_, err = interp.Run(ctx, p, "divmod", 1, 0)
			assert.ErrorIs(t, err, interp.ErrDivByZero)
		})
	}
}

func pressure(n int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "global g = \"call\"\n\nfunc pressure(a) int {\n")

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "\tx%d = a * %d\n", i, i+1)
	}

	fmt.Fprintf(&b, "\tcall @_builtin_println(@g)\n")
	fmt.Fprintf(&b, "\tr = 0\n")

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "\tr = r + x%d\n", i)
	}

	fmt.Fprintf(&b, "\treturn r\n}\n")

	return b.String()
}

func TestRegisterPressure(t *testing.T) {
	const n = 24

	for name, cfg := range configs() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p, err := Compile(ctx, "pressure.ir", []byte(pressure(n)), cfg)
			require.NoError(t, err)

			res, err := interp.Run(ctx, p, "pressure", 2)
			require.NoError(t, err)

			assert.Equal(t, int64(2*n*(n+1)/2), res.RAX)
			assert.Equal(t, "call\n", res.Output)
			assert.Contains(t, p.String(), "[rbp-")
		})
	}
}

func TestCompileErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Compile(ctx, "bad.ir", []byte("func f( {"), Config{})
	assert.Error(t, err)

	_, err = Compile(ctx, "bad.ir", []byte("func f() int {\n\trax = 1\n\treturn rax\n}\n"), Config{})
	assert.Error(t, err)

	_, err = Compile(ctx, "ok.ir", []byte("func f() int {\n\treturn 1\n}\n"), Config{Allocator: "linear"})
	assert.Error(t, err)

	_, err = CompileFile(ctx, "testdata/does_not_exist.ir", Config{})
	assert.Error(t, err)
}
