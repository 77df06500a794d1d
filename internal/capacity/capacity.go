// Package capacity resolves a venue identifier to its seat count.  Resolvers
// are composed: a Chain asks each source in turn and falls back to a
// configured default when no source knows the venue.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownVenue signals that a resolver has no capacity for a venue.  It
// is a lookup miss, not a failure; Chain moves on to the next resolver.
var ErrUnknownVenue = errors.New("unknown venue")

// Resolver maps a venue identifier to its total seat count.
type Resolver interface {
	Capacity(ctx context.Context, venueID string) (int, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, venueID string) (int, error)

func (f ResolverFunc) Capacity(ctx context.Context, venueID string) (int, error) {
	return f(ctx, venueID)
}

// Static is an in-memory venue → seats table.
type Static map[string]int

// Capacity returns the configured seat count or ErrUnknownVenue.
func (s Static) Capacity(_ context.Context, venueID string) (int, error) {
	if n, ok := s[venueID]; ok && n > 0 {
		return n, nil
	}
	return 0, ErrUnknownVenue
}

// LoadStatic reads a YAML document of the form
//
//	charlotte-theater: 1240
//	blue-square: 1766
//
// An empty path yields an empty table.
func LoadStatic(path string) (Static, error) {
	if path == "" {
		return Static{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venue capacity file: %w", err)
	}
	out := Static{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse venue capacity file: %w", err)
	}
	for id, n := range out {
		if n <= 0 {
			return nil, fmt.Errorf("venue %q: capacity must be positive, got %d", id, n)
		}
	}
	return out, nil
}

// Chain consults Resolvers in order and returns the first positive capacity.
// Misses fall through; when every resolver misses, Default is returned.
// Any other error aborts the lookup.
type Chain struct {
	Default   int
	Resolvers []Resolver
}

// NewChain builds a Chain, skipping nil resolvers.
func NewChain(def int, resolvers ...Resolver) *Chain {
	c := &Chain{Default: def}
	for _, r := range resolvers {
		if r != nil {
			c.Resolvers = append(c.Resolvers, r)
		}
	}
	return c
}

func (c *Chain) Capacity(ctx context.Context, venueID string) (int, error) {
	for _, r := range c.Resolvers {
		n, err := r.Capacity(ctx, venueID)
		if errors.Is(err, ErrUnknownVenue) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("capacity lookup for venue %q: %w", venueID, err)
		}
		if n > 0 {
			return n, nil
		}
	}
	return c.Default, nil
}
