// Package stream implements the push-based instruction channel that connects a
// template front-end to its consumers. A Stream has exactly one writer and any
// number of Handlers; every event is delivered synchronously, in registration
// order, before the writer regains control.
//
// The lifecycle is Open → ClosedError or Open → ClosedDone. Once closed, every
// further operation panics with a *ProtocolViolation, mirroring the way Go
// treats a send on a closed channel.
package stream
