// Package session implements the Session Service: lifecycle, summary
// assembly via a TF-IDF topic extractor, cross-session search, and
// per-user analytics.
package session
