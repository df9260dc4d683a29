package storage

// Package storage owns the per-guild moderation records and the
// moderation audit trail.
//
// It currently supports:
//   - Guild record create/read/replace/delete (keyed by guild ID)
//   - Audit log appends with retention pruning
