package models

import "sort"

// FailedIPSet is the set of router IPs the health monitor currently
// considers unhealthy. Snapshots replace each other wholesale; the empty
// set is valid and means "all healthy".
type FailedIPSet map[string]struct{}

func NewFailedIPSet(ips ...string) FailedIPSet {
	set := make(FailedIPSet, len(ips))
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
	return set
}

func (f FailedIPSet) Has(ip string) bool {
	_, ok := f[ip]
	return ok
}

func (f FailedIPSet) Equal(other FailedIPSet) bool {
	if len(f) != len(other) {
		return false
	}
	for ip := range f {
		if _, ok := other[ip]; !ok {
			return false
		}
	}
	return true
}

func (f FailedIPSet) Sorted() []string {
	ips := make([]string, 0, len(f))
	for ip := range f {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}
