package permission

import (
	"context"
	"errors"
)

// ErrDenied is returned by [Resolver.Require] when the check fails.
var ErrDenied = errors.New("permission denied")

// Loader fetches a custom role's grant set from the identity store.
// Returning an error denies the check (fail closed).
type Loader interface {
	LoadGrants(ctx context.Context, roleID string) (Grants, error)
}

// LoaderFunc adapts a function to the [Loader] interface.
type LoaderFunc func(ctx context.Context, roleID string) (Grants, error)

func (f LoaderFunc) LoadGrants(ctx context.Context, roleID string) (Grants, error) {
	return f(ctx, roleID)
}

// Resolver answers allow/deny for (role, module, action). Built-in roles
// resolve from the static matrix; anything else is treated as a custom
// role ID resolved through the cache.
type Resolver struct {
	cache  *Cache
	loader Loader
}

// NewResolver creates a resolver over the given cache and loader. The
// loader may be nil, in which case every custom-role check denies.
func NewResolver(cache *Cache, loader Loader) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{cache: cache, loader: loader}
}

// Cache exposes the injected cache so role mutation paths can invalidate.
func (r *Resolver) Cache() *Cache { return r.cache }

// Has reports whether the role grants the module/action pair. Unknown
// roles, modules, and actions deny.
func (r *Resolver) Has(ctx context.Context, role, module, action string) bool {
	if role == "" || module == "" || action == "" {
		return false
	}

	if g, ok := BuiltinGrants(role); ok {
		return g.Allows(module, action)
	}

	g, ok := r.cache.get(role)
	if !ok {
		if r.loader == nil {
			return false
		}
		loaded, err := r.loader.LoadGrants(ctx, role)
		if err != nil {
			return false
		}
		r.cache.put(role, loaded)
		g = loaded
	}

	return g.Allows(module, action)
}

// Require is the error-returning form of [Resolver.Has] for call sites
// that prefer control flow over booleans.
func (r *Resolver) Require(ctx context.Context, role, module, action string) error {
	if !r.Has(ctx, role, module, action) {
		return ErrDenied
	}
	return nil
}

// GrantsFromPermissions converts a stored module→actions listing into a
// grant set, dropping module and action names that are not recognized.
// The allow-list keeps custom-role data from granting outside the known
// matrix surface.
func GrantsFromPermissions(perms map[string][]string) Grants {
	known := make(map[string]bool, len(allModules))
	for _, m := range allModules {
		known[m] = true
	}
	knownActions := make(map[string]bool, len(allActions))
	for _, a := range allActions {
		knownActions[a] = true
	}

	g := make(Grants, len(perms))
	for module, actions := range perms {
		if !known[module] {
			continue
		}
		set := make(map[string]bool, len(actions))
		for _, a := range actions {
			if knownActions[a] {
				set[a] = true
			}
		}
		if len(set) > 0 {
			g[module] = set
		}
	}
	return g
}
