// Package permission resolves principals to grants and answers access
// questions against the dataset catalogue.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/daap14/askdb/internal/catalog"
)

// Allowlist is the static set of principals that always hold an active
// admin grant.
type Allowlist map[string]struct{}

// NewAllowlist builds an Allowlist from principal ids, ignoring case and
// blank entries.
func NewAllowlist(ids ...string) Allowlist {
	a := make(Allowlist, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			a[id] = struct{}{}
		}
	}
	return a
}

// Contains reports whether principalID is allow-listed.
func (a Allowlist) Contains(principalID string) bool {
	_, ok := a[strings.ToLower(strings.TrimSpace(principalID))]
	return ok
}

// Resolver maps principals to grants.
type Resolver struct {
	store     Store
	allowlist Allowlist
}

// NewResolver creates a new Resolver.
func NewResolver(store Store, allowlist Allowlist) *Resolver {
	return &Resolver{store: store, allowlist: allowlist}
}

// Resolve returns the grant for principalID, or ErrGrantNotFound. For an
// allow-listed principal the stored grant is provisioned or corrected to an
// active admin grant first.
func (r *Resolver) Resolve(ctx context.Context, principal Principal) (*Grant, error) {
	g, err := r.store.Get(ctx, principal.ID)
	if err != nil && !errors.Is(err, ErrGrantNotFound) {
		return nil, fmt.Errorf("loading grant: %w", err)
	}

	if r.allowlist.Contains(principal.ID) {
		return r.ensureAdmin(ctx, principal, g)
	}

	if g == nil {
		return nil, ErrGrantNotFound
	}
	return g, nil
}

// ensureAdmin upserts an active admin grant for an allow-listed principal.
// Allowlist membership always wins over the stored role.
func (r *Resolver) ensureAdmin(ctx context.Context, principal Principal, existing *Grant) (*Grant, error) {
	if existing.IsAdmin() {
		return existing, nil
	}

	var g Grant
	if existing != nil {
		g = *existing
		slog.Warn("correcting grant for allow-listed admin",
			"principal", principal.ID,
			"storedRole", existing.Role,
			"storedActive", existing.IsActive,
		)
	} else {
		g = Grant{
			PrincipalID:      principal.ID,
			Kind:             principal.Kind,
			CanViewDashboard: true,
			CanViewReports:   true,
		}
		slog.Info("provisioning grant for allow-listed admin", "principal", principal.ID)
	}
	if g.Kind == "" {
		g.Kind = KindUser
	}
	g.Role = RoleAdmin
	g.IsActive = true

	if err := r.store.Upsert(ctx, &g); err != nil {
		return nil, fmt.Errorf("provisioning admin grant: %w", err)
	}
	return &g, nil
}

// IsAllowlisted reports whether principalID is in the admin allowlist.
func (r *Resolver) IsAllowlisted(principalID string) bool {
	return r.allowlist.Contains(principalID)
}

// HasDatasetAccess reports whether g may query d. Admins may query any
// dataset; others need an explicit dataset entry or a grant on the
// dataset's linked agent.
func HasDatasetAccess(g *Grant, d *catalog.Dataset) bool {
	if g == nil || d == nil || !g.IsActive {
		return false
	}
	if g.Role == RoleAdmin {
		return true
	}
	if slices.Contains(g.Datasets, d.ID) {
		return true
	}
	return d.AgentID != nil && slices.Contains(g.Agents, *d.AgentID)
}

// HasAgentAccess reports whether g may use agent a.
func HasAgentAccess(g *Grant, a *catalog.Agent) bool {
	if g == nil || a == nil || !g.IsActive {
		return false
	}
	if g.Role == RoleAdmin {
		return true
	}
	return slices.Contains(g.Agents, a.ID)
}

// AccessibleDatasets filters the catalogue down to datasets g may query.
// Admin listings hold every active dataset.
func AccessibleDatasets(g *Grant, c catalog.Reader) []catalog.Dataset {
	var out []catalog.Dataset
	for _, d := range c.Datasets() {
		if isAdmin(g) && !d.IsActive() {
			continue
		}
		if HasDatasetAccess(g, &d) {
			out = append(out, d)
		}
	}
	return out
}

// AccessibleAgents filters the catalogue down to agents g may use.
// Admin listings hold every enabled agent.
func AccessibleAgents(g *Grant, c catalog.Reader) []catalog.Agent {
	var out []catalog.Agent
	for _, a := range c.Agents() {
		if isAdmin(g) && !a.Enabled {
			continue
		}
		if HasAgentAccess(g, &a) {
			out = append(out, a)
		}
	}
	return out
}

func isAdmin(g *Grant) bool {
	return g != nil && g.Role == RoleAdmin
}
