// Package replset holds the replica set configuration and status types
// exchanged with the target node.
package replset

import (
	"fmt"
	"net"
	"slices"
	"strconv"
)

// Member is a single replica set member as submitted to replSetInitiate.
type Member struct {
	ID   int    `bson:"_id" json:"id"`
	Host string `bson:"host" json:"host"`
}

// Config is the replica set configuration document.
type Config struct {
	ID      string   `bson:"_id" json:"id"`
	Version int64    `bson:"version,omitempty" json:"version,omitempty"`
	Members []Member `bson:"members" json:"members"`
}

// SingleMember returns the configuration for a one-member set at host.
func SingleMember(id, host string) Config {
	return Config{
		ID:      id,
		Members: []Member{{ID: 0, Host: host}},
	}
}

// Validate checks the invariants a config must satisfy before it is
// submitted. Violations wrap ErrConfigurationRejected.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: replica set id is empty", ErrConfigurationRejected)
	}
	if len(c.Members) == 0 {
		return fmt.Errorf("%w: replica set %q has no members", ErrConfigurationRejected, c.ID)
	}

	ids := make(map[int]struct{}, len(c.Members))
	hosts := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		if m.ID < 0 {
			return fmt.Errorf("%w: member index %d is negative", ErrConfigurationRejected, m.ID)
		}
		if _, dup := ids[m.ID]; dup {
			return fmt.Errorf("%w: duplicate member index %d", ErrConfigurationRejected, m.ID)
		}
		ids[m.ID] = struct{}{}

		if err := validateHost(m.Host); err != nil {
			return fmt.Errorf("%w: member %d: %w", ErrConfigurationRejected, m.ID, err)
		}
		if _, dup := hosts[m.Host]; dup {
			return fmt.Errorf("%w: duplicate member host %s", ErrConfigurationRejected, m.Host)
		}
		hosts[m.Host] = struct{}{}
	}
	return nil
}

// Matches reports whether other describes the same set: same identifier and
// the same (index, host) members regardless of order. Version is ignored.
func (c Config) Matches(other Config) bool {
	if c.ID != other.ID || len(c.Members) != len(other.Members) {
		return false
	}
	return slices.Equal(sortedMembers(c.Members), sortedMembers(other.Members))
}

// Hosts returns the member hosts in index order.
func (c Config) Hosts() []string {
	members := sortedMembers(c.Members)
	hosts := make([]string, len(members))
	for i, m := range members {
		hosts[i] = m.Host
	}
	return hosts
}

func sortedMembers(members []Member) []Member {
	out := slices.Clone(members)
	slices.SortFunc(out, func(a, b Member) int { return a.ID - b.ID })
	return out
}

func validateHost(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("host %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("host %q: missing hostname", addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("host %q: invalid port", addr)
	}
	return nil
}
