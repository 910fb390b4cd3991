// Package executor runs Starlark scripts with access to host functions and
// the embedded builtin modules.
//
// # Overview
//
// Every script sees one predeclared name, tjs. It carries the error helpers
// (tjs.Error, tjs.catch, tjs.throw), tjs.call, tjs.builtins, tjs.version,
// tjs.args, and one function per enabled host capability. Host functions take
// keyword arguments only:
//
//	load("tjs:path", "join")
//	data = tjs.fs_read(path = join("/data", "input.txt"))
//
// load() resolves a specifier through the module cache of the current run,
// then the module root (when one is configured, as NAME.star or NAME.tjsb),
// then the builtin loader. Anything else fails with "unresolved import".
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Run(ctx, `print("hello")`)
//	fmt.Println(result.Output)
//
// # Sessions
//
// Sessions maintain globals, loaded modules and the KV store across runs:
//
//	session, err := exec.NewSession()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Run(ctx, `x = 42`)
//	session.Run(ctx, `print(x)`)  // Output: 42
//
// # Capabilities
//
// By default scripts have no access to filesystem, network, or other system
// resources. Only tjs.random, tjs.time_now and tjs.hash are always present.
// Enable capabilities explicitly:
//
//	session, _ := exec.NewSession(
//	    executor.WithSessionAllowedHosts([]string{"api.example.com"}),
//	    executor.WithSessionMount("/data", "./input", hostfunc.MountReadOnly),
//	    executor.WithSessionKV(),
//	)
//
// Failures of OS-facing functions reach scripts as errno values:
//
//	res, err = tjs.catch(tjs.fs_read, path = "/data/missing.txt")
//	if err and err.code == "ENOENT":
//	    ...
package executor
