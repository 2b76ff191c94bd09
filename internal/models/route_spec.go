package models

import (
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"sort"
)

// RouteSpec maps a destination CIDR to the ordered list of candidate
// router IPs for it, highest priority first. A spec is always a full
// snapshot and is never mutated after it has been published.
type RouteSpec map[string][]string

// ParseRouteSpec decodes and validates a JSON route spec document of the
// form {"10.1.0.0/24": ["10.0.0.5", "10.0.0.6"], ...}. All watcher
// implementations go through this, so a malformed spec is rejected the
// same way no matter where it came from.
func ParseRouteSpec(data []byte) (RouteSpec, error) {
	var spec RouteSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode route spec json: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s RouteSpec) Validate() error {
	for cidr, candidates := range s {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid destination cidr %q: %w", cidr, err)
		}
		if len(candidates) == 0 {
			return fmt.Errorf("no router ips listed for cidr %q", cidr)
		}
		for _, ip := range candidates {
			if net.ParseIP(ip) == nil {
				return fmt.Errorf("invalid router ip %q for cidr %q", ip, cidr)
			}
		}
	}
	return nil
}

// AllIPs returns every router IP mentioned anywhere in the spec,
// deduplicated and sorted. This is the list handed to the health monitor.
func (s RouteSpec) AllIPs() []string {
	seen := make(map[string]struct{})
	for _, candidates := range s {
		for _, ip := range candidates {
			seen[ip] = struct{}{}
		}
	}
	all := make([]string, 0, len(seen))
	for ip := range seen {
		all = append(all, ip)
	}
	sort.Strings(all)
	return all
}

func (s RouteSpec) Equal(other RouteSpec) bool {
	if len(s) != len(other) {
		return false
	}
	for cidr, candidates := range s {
		if !slices.Equal(candidates, other[cidr]) {
			return false
		}
	}
	return true
}

// CIDRs returns the spec's destination blocks in sorted order, so that
// reconciliation walks them deterministically.
func (s RouteSpec) CIDRs() []string {
	cidrs := make([]string, 0, len(s))
	for cidr := range s {
		cidrs = append(cidrs, cidr)
	}
	sort.Strings(cidrs)
	return cidrs
}
