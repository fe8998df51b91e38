// Package httpremote carries sync envelopes over HTTP.
//
// Client implements syncbox.Remote by POSTing each envelope to a single
// endpoint with the op id as Idempotency-Key. NewHandler serves any
// syncbox.Remote behind that endpoint so a Reference remote, or a real
// system of record, can be reached by a Client.
package httpremote
