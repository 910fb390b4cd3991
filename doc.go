// Package tjs is a Starlark runtime with an embedded standard library and
// host bindings whose failures surface as errno values.
//
// # Overview
//
// Scripts run with zero default capabilities. Filesystem, network,
// environment and WebAssembly access must be explicitly enabled. Builtin
// modules such as tjs:path and tjs:uuid are compiled into the binary and
// resolved by specifier prefix.
//
// # Basic Usage
//
//	exec, _ := executor.New(hostfunc.NewRegistry())
//	defer exec.Close()
//
//	// Stateless execution
//	result := exec.Run(ctx, `load("tjs:path", "join")
//	print(join("a", "b"))`)
//	fmt.Println(result.Output)
//
//	// Session with persistent state
//	session, _ := exec.NewSession()
//	session.Run(ctx, `x = 42`)
//	session.Run(ctx, `print(x)`)  // 42
//
// # Enabling Capabilities
//
//	// HTTP access
//	result := exec.Run(ctx, code,
//	    executor.WithAllowedHosts([]string{"api.example.com"}))
//
//	// Filesystem access
//	result := exec.Run(ctx, code,
//	    executor.WithMount("/data", "./input", hostfunc.MountReadOnly))
//
//	// Key-value store
//	result := exec.Run(ctx, code, executor.WithKV())
//
// See the [executor], [hostfunc], [builtin], [bytecode] and [errno] packages
// for detailed API documentation.
package tjs
