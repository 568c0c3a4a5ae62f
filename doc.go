// Package authcore is the authentication and authorization core for the
// opsdeck business-operations suite.
//
// It owns three tightly coupled concerns: adaptive login (password
// verification gated by a per-origin trust ledger and an email OTP
// challenge for unrecognized origins), refresh-token rotation with
// reuse detection and a bounded race-tolerance window, and permission
// resolution over a static built-in role matrix overlaid by admin-defined
// custom roles with an invalidatable cache.
//
// The host application wires the engine through the [Builder] with a Redis
// client, an [IdentityProvider] for user records, a [RoleProvider] for
// custom roles, and an [OTPSender] for out-of-band code delivery. All
// shared mutable state that must stay atomic across server instances
// (rate counters, OTP challenges, trusted origins, refresh-token rows)
// lives in Redis; every multi-step mutation runs as a single Lua script.
package authcore
