// Package decay implements the Decay Engine: an explicitly-triggered
// pass of ordered phases (TTL expiry, old-and-unimportant purge, group
// compression, session summarization, quota enforcement) that reports
// a single DecayStats audit record. Grounded on
// original_source/rust-core/src/core/decay.rs for phase ordering and
// the compressed-content synthesis format.
package decay
