// Package memory implements the Memory Service: CRUD on memories,
// batch ingest, export, and per-user statistics. It is the layer every
// caller — synchronous or through the async façade — goes through
// before the query/storage layers.
package memory
