// Package remote provides Reference, an in-memory system of record that
// applies sync envelopes with opId deduplication and cross-sync referential
// checks. It backs local development, the syncbox serve command and tests.
package remote
