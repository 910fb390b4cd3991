// Package builtin embeds the runtime's standard library modules and resolves
// import specifiers such as "tjs:path" against them.
//
// The table is fixed when the binary is built. Each entry maps a specifier to
// a compiled module blob (see package bytecode) produced from stdlib/*.star by
// go generate. Resolution picks the first
// entry, in table order, whose specifier is a literal prefix of the request:
//
//	reg := builtin.Default()
//	loader := builtin.NewLoader(reg, logger)
//
//	mod, ok := loader.Load("tjs:path")
//	if !ok {
//		// not a builtin; try something else
//	}
//	globals, err := mod.Program.Init(thread, predeclared)
//
// Blobs are trusted. One that fails to decode means the binary itself is
// broken, so Load logs it at fatal level and the process exits instead of
// returning an error.
package builtin
