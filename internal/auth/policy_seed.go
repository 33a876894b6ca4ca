package auth

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tsio/tsio/internal/store"
)

// PolicySeedEntry is one bootstrap OidcPolicy row, as it appears in a policy
// seed file.
type PolicySeedEntry struct {
	Pattern     string `yaml:"pattern"`
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
}

// PolicySeedDocument is the top-level shape of a policy seed file:
//
//	policies:
//	  - pattern: "my-org/*"
//	    role: contributor
//	    description: "default access for my-org repositories"
type PolicySeedDocument struct {
	Policies []PolicySeedEntry `yaml:"policies"`
}

// LoadPolicySeedFile reads and parses a policy seed document from path.
func LoadPolicySeedFile(path string) (*PolicySeedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy seed file: %w", err)
	}

	var doc PolicySeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy seed file: %w", err)
	}

	return &doc, nil
}

// SeedPolicies creates any entry in doc whose pattern isn't already present
// in policies, so re-running this against an already-seeded database is a
// no-op rather than a duplicate-row error. Called once at startup, not on
// PolicyEngine's hot path.
func SeedPolicies(ctx context.Context, policies store.PolicyStore, doc *PolicySeedDocument, logger *slog.Logger) error {
	existing, err := policies.List(ctx)
	if err != nil {
		return fmt.Errorf("list existing policies: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.Pattern] = true
	}

	for _, entry := range doc.Policies {
		if seen[entry.Pattern] {
			continue
		}

		role := store.Role(entry.Role)
		if !role.IsValid() {
			return fmt.Errorf("%w: seed policy %q has unknown role %q", store.ErrInvalidArgument, entry.Pattern, entry.Role)
		}

		if _, err := policies.Create(ctx, entry.Pattern, role, entry.Description); err != nil {
			return fmt.Errorf("seed policy %q: %w", entry.Pattern, err)
		}

		logger.Info("seeded oidc policy", slog.String("pattern", entry.Pattern), slog.String("role", entry.Role))
	}

	return nil
}
