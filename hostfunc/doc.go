// Package hostfunc provides the host functions scripts reach through the tjs
// namespace.
//
// Scripts have no implicit access to system resources. Each capability is
// enabled by registering its functions on a [Registry]:
//
//	registry := hostfunc.NewRegistry()
//	hostfunc.RegisterCore(registry) // random, time_now, hash
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// A function receives the keyword arguments of the script call. Request
// structs in types.go describe what each built-in function accepts; loosely
// typed input (an int where a string is expected, bytes for a string) is
// converted while decoding.
//
// # Built-in Capabilities
//
// Filesystem: mount-based access via [FS], [Mount], and [MountMode].
//
//	fs := hostfunc.NewFS([]hostfunc.Mount{
//	    {VirtualPath: "/data", HostPath: "./input", Mode: hostfunc.MountReadOnly},
//	}, hostfunc.WithMaxFileSize(1<<20))
//	fs.Register(registry)
//
// Key-Value Store: in-memory storage via [KV] and [KVConfig].
//
// HTTP: requests limited to allowed hosts via [HTTP] and [HTTPConfig].
//
// OS: environment, working directory and host information via [OS].
//
// WebAssembly: calling exported functions of modules via [Wasm].
//
// # Errors
//
// Failures that originate in the OS, or that a policy maps onto an OS
// condition, are raised as errno errors (see package errno), so scripts see
// the same code and message shape everywhere:
//
//	path outside every mount      ENOENT
//	write to a read-only mount    EROFS
//	create where not permitted    EACCES
//	file over the size limit      EFBIG
//	path over the length limit    ENAMETOOLONG
//	invalid WebAssembly binary    EFTYPE
//
// Argument validation errors are plain errors.
package hostfunc
