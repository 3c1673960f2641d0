// Package handle implements the programmatic handle-based ABI: a
// JSON-in/JSON-out surface addressed by an opaque int64 handle,
// suitable for embedding MindCache in another runtime. There is no
// cgo export boundary in this module, so the ABI is plain exported Go
// functions operating on an in-process registry rather than C calling
// conventions; free_string is a no-op kept for call-site symmetry
// with embedders that do cross a real FFI boundary.
package handle
