// Package auth provides the client-side session bootstrap and authorization
// gate used by the field-service application.
//
// Session bootstrap:
//   - Machine reconciles the SessionStore probe, the auth-change subscription,
//     and a fixed bootstrap timeout into one State value ({User, Loading,
//     Error}). Every operation bumps a generation counter and async results
//     are applied only while their generation is current, so a late probe can
//     never overwrite a timeout and vice versa.
//   - Roles and the approval flag come from a cached RoleSnapshot when it is
//     complete, otherwise from the ProfileResolver. A missing profile is never
//     replaced with a default role.
//
// Local persistence:
//   - KeyValueStore is the process-wide string store that survives restarts
//     (MemoryStore, FileStore, or the redisstore adapter). SnapshotCache is the
//     only writer of the role snapshot keys and is owned by the Machine.
//
// Gating:
//   - Gate answers allow-or-redirect for a user, a required role and a
//     destination. Only the primary role (Roles[0]) participates.
//
// Activity sinks:
//   - ActivitySink is a best-effort audit emitter for sign-in, sign-out,
//     timeout and failure events. Sink errors are logged, never returned.
package auth
