// Package syncbox provides an offline-first synchronization outbox.
//
// Typical flow:
//  1. Business code enqueues a PendingOperation in the same local transaction
//     as the mutation it describes, using a storage-specific Store.
//  2. A Relay drains PENDING entries oldest first. Each entry is canonicalized,
//     previewed and wrapped in a versioned Envelope carrying its op id.
//  3. A Remote applies the envelope. Accepted entries become DONE, rejected or
//     ambiguous ones FAILED and can be reset to PENDING and replayed safely,
//     since the remote deduplicates by op id.
//
// Storage backends live in the sqlite and mysql packages. The remote package
// holds an in-memory reference remote and httpremote carries envelopes over HTTP.
package syncbox
