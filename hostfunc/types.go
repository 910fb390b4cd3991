package hostfunc

// KV store types

type KVGetRequest struct {
	Key     string `json:"key"`
	Default any    `json:"default"`
}

type KVSetRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type KVDeleteRequest struct {
	Key string `json:"key"`
}

// HTTP types

type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Filesystem types

type FSPathRequest struct {
	Path string `json:"path"`
}

type FSWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// OS types

type EnvRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ExitRequest struct {
	Status int `json:"status"`
}

// CPU describes one logical processor. Speed is in MHz and times are
// milliseconds spent in each mode since boot.
type CPU struct {
	Model string
	Speed int64
	Times CPUTimes
}

type CPUTimes struct {
	User, Nice, Sys, Idle, IRQ float64
}

type RandomRequest struct {
	Size int `json:"size"`
}

type HashRequest struct {
	Algorithm string `json:"algorithm"`
	Data      string `json:"data"`
}

// WebAssembly types

type WasmRequest struct {
	// Module holds the binary. Path names it on a mount instead.
	Module   string `json:"module"`
	Path     string `json:"path"`
	Function string `json:"function"`
	Args     []any  `json:"args"`
}
