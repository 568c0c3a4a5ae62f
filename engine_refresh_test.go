package authcore

import (
	"errors"
	"sync"
	"testing"
)

func loginTokens(t *testing.T, fx *engineFixture) *TokenPair {
	t.Helper()
	res, err := fx.engine.Login(ctxFrom("203.0.113.9", "go-test"), "ada", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens")
	}
	return res.Tokens
}

func devEngine(t *testing.T, mutate func(*Config)) *engineFixture {
	return newTestEngine(t, func(cfg *Config) {
		cfg.Environment = EnvDevelopment
		if mutate != nil {
			mutate(cfg)
		}
	}, testUser(t))
}

func TestRefreshRotation(t *testing.T) {
	fx := devEngine(t, nil)
	ctx := ctxFrom("203.0.113.9", "go-test")
	first := loginTokens(t, fx)

	second, err := fx.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation must mint a new refresh value")
	}
	if second.AccessToken == "" {
		t.Fatal("rotation must mint a new access token")
	}

	// The successor keeps working.
	third, err := fx.engine.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if third.RefreshToken == second.RefreshToken {
		t.Fatal("every rotation must mint a new value")
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	fx := devEngine(t, nil)
	ctx := ctxFrom("203.0.113.9", "go-test")

	for _, tok := range []string{"", "never-issued"} {
		if _, err := fx.engine.Refresh(ctx, tok); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("token %q: got %v, want ErrTokenExpired", tok, err)
		}
	}
}

func TestRefreshReplayWithinGrace(t *testing.T) {
	fx := devEngine(t, nil) // default 60s grace
	ctx := ctxFrom("203.0.113.9", "go-test")
	first := loginTokens(t, fx)

	winner, err := fx.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Immediate replay of the rotated-away token: benign race. The
	// loser is handed the winner's lineage, not a new one.
	recovered, err := fx.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("replay within grace: %v", err)
	}
	if recovered.RefreshToken != winner.RefreshToken {
		t.Fatal("race recovery must return the winning rotation's refresh token")
	}
	if recovered.AccessToken == "" {
		t.Fatal("race recovery must mint an access token")
	}

	// The lineage survives.
	if _, err := fx.engine.Refresh(ctx, winner.RefreshToken); err != nil {
		t.Fatalf("lineage should remain valid: %v", err)
	}
}

func TestRefreshReuseOutsideGrace(t *testing.T) {
	fx := devEngine(t, func(cfg *Config) {
		cfg.Refresh.GraceWindow = 0
	})
	ctx := ctxFrom("203.0.113.9", "go-test")
	first := loginTokens(t, fx)

	winner, err := fx.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// With no grace, any replay is treated as theft.
	_, err = fx.engine.Refresh(ctx, first.RefreshToken)
	if !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}

	// Containment: the whole lineage is dead, including the winner.
	if _, err := fx.engine.Refresh(ctx, winner.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired after containment, got %v", err)
	}
}

func TestRefreshConcurrentSingleLineage(t *testing.T) {
	fx := devEngine(t, nil)
	ctx := ctxFrom("203.0.113.9", "go-test")
	first := loginTokens(t, fx)

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	type outcome struct {
		pair *TokenPair
		err  error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			pair, err := fx.engine.Refresh(ctx, first.RefreshToken)
			results <- outcome{pair, err}
		}()
	}
	wg.Wait()
	close(results)

	successors := make(map[string]bool)
	for res := range results {
		if res.err != nil {
			// A loser that scanned for the winner's lineage before it was
			// persisted is turned away; it must never mint its own.
			if !errors.Is(res.err, ErrTokenExpired) {
				t.Fatalf("unexpected refresh error: %v", res.err)
			}
			continue
		}
		if res.pair.AccessToken == "" {
			t.Fatal("successful refresh must carry an access token")
		}
		if res.pair.RefreshToken == first.RefreshToken {
			t.Fatal("rotation handed back the consumed token")
		}
		successors[res.pair.RefreshToken] = true
	}

	if len(successors) != 1 {
		t.Fatalf("expected exactly one successor lineage, got %d", len(successors))
	}

	// The surviving lineage keeps rotating.
	for tok := range successors {
		if _, err := fx.engine.Refresh(ctx, tok); err != nil {
			t.Fatalf("successor refresh: %v", err)
		}
	}
}

func TestRefreshSingleUse(t *testing.T) {
	fx := devEngine(t, func(cfg *Config) {
		cfg.Refresh.GraceWindow = 0
	})
	ctx := ctxFrom("203.0.113.9", "go-test")
	first := loginTokens(t, fx)

	if _, err := fx.engine.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := fx.engine.Refresh(ctx, first.RefreshToken); err == nil {
		t.Fatal("a refresh value must never succeed twice")
	}
}

func TestLogout(t *testing.T) {
	fx := devEngine(t, nil)
	ctx := ctxFrom("203.0.113.9", "go-test")
	tokens := loginTokens(t, fx)

	if err := fx.engine.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// The revoked token cannot rotate; with no surviving sibling the
	// grace path has nothing to hand back, and the replay is flagged as
	// reuse in the security log.
	if _, err := fx.engine.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired after logout, got %v", err)
	}
	if n := fx.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; n != 1 {
		t.Fatalf("reuse counter = %d, want 1", n)
	}

	// Idempotent.
	if err := fx.engine.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("repeated Logout: %v", err)
	}
	if err := fx.engine.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("Logout of unknown token: %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	fx := devEngine(t, nil)
	ctx := ctxFrom("203.0.113.9", "go-test")

	a := loginTokens(t, fx)
	b := loginTokens(t, fx)

	if err := fx.engine.LogoutAll(ctx, "u-1"); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}

	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := fx.engine.Refresh(ctx, tok); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
	}
}

func TestRefreshDeactivatedUser(t *testing.T) {
	fx := devEngine(t, nil)
	ctx := ctxFrom("203.0.113.9", "go-test")
	tokens := loginTokens(t, fx)
	other := loginTokens(t, fx)

	fx.identity.mu.Lock()
	u := fx.identity.users["u-1"]
	u.Active = false
	fx.identity.users["u-1"] = u
	fx.identity.mu.Unlock()

	if _, err := fx.engine.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for deactivated user, got %v", err)
	}

	// Deactivation kills the whole lineage, not just the presented token.
	if _, err := fx.engine.Refresh(ctx, other.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for sibling after deactivation, got %v", err)
	}
}
