package stats

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const probeConcurrency = 10

// OwnerProber answers whether an address has ever owned an issue. Role
// accounts and mailing lists get accounts created for them too, but they
// never create issues, so "never owned an issue" means "not a person".
type OwnerProber interface {
	HasOwnedIssue(ctx context.Context, email string) (bool, error)
}

// Classifier separates genuine human reviewer addresses from role
// accounts and mailing lists. Results are memoized for the lifetime of
// one aggregation run; nothing is persisted.
type Classifier struct {
	prober OwnerProber
	real   map[string]bool
	fake   map[string]bool
}

// NewClassifier creates a classifier with empty caches.
func NewClassifier(prober OwnerProber) *Classifier {
	return &Classifier{
		prober: prober,
		real:   make(map[string]bool),
		fake:   make(map[string]bool),
	}
}

// MarkReal records an address as a confirmed person without probing.
// Issue owners are real by definition, which saves one lookup each.
func (c *Classifier) MarkReal(email string) {
	c.real[email] = true
}

// looksLikeRoleAccount is the cheap syntactic exclusion applied before
// any lookup. Plus-addressing catches most watchlist subscriptions.
func looksLikeRoleAccount(email string) bool {
	return strings.Contains(email, "+") ||
		strings.HasPrefix(email, "commit-bot") ||
		strings.HasSuffix(email, "gserviceaccount.com")
}

// RealAccounts returns the subset of candidates confirmed to be people.
// Unknown addresses are probed concurrently and cached either way.
func (c *Classifier) RealAccounts(ctx context.Context, candidates []string) ([]string, error) {
	var unknown []string
	remaining := make(map[string]bool)
	for _, email := range candidates {
		if looksLikeRoleAccount(email) || c.fake[email] {
			continue
		}
		if remaining[email] {
			continue
		}
		remaining[email] = true
		if !c.real[email] {
			unknown = append(unknown, email)
		}
	}

	results := make([]bool, len(unknown))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, email := range unknown {
		g.Go(func() error {
			owned, err := c.prober.HasOwnedIssue(gctx, email)
			if err != nil {
				return err
			}
			results[i] = owned
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, email := range unknown {
		if results[i] {
			c.real[email] = true
		} else {
			c.fake[email] = true
			delete(remaining, email)
		}
	}

	out := make([]string, 0, len(remaining))
	for email := range remaining {
		out = append(out, email)
	}
	sort.Strings(out)
	return out, nil
}
