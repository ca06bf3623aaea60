/*

Process of compilation

Mid-level IR Text ->
	front ->
Intermediate Representation (ir) ->
	tiling ->
Assembly with abstract registers (asm) ->
	optimize ->
	regalloc ->
	optimize ->
Assembly with machine registers ->
	back (frames, program) ->
Assembly Text

Assembly Program ->
	interp ->
Result and Output

*/
package compiler
