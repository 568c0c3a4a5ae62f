// Package permission resolves allow/deny decisions for (role, module,
// action) triples. Built-in roles resolve from a static matrix; any other
// role value is treated as a custom-role ID and resolved through an
// invalidatable cache backed by a [Loader].
//
// Every unknown role, module, or action denies. There is no TTL on the
// cache: correctness depends on invalidation being exhaustive, so
// [Cache.Invalidate] is the only mutation entry point and every
// custom-role update or delete path must call it.
package permission
