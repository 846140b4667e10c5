package inventory

import "sort"

// HostSet is an unordered set of host names.
type HostSet map[string]struct{}

// NewHostSet builds a set from names, collapsing duplicates.
func NewHostSet(names ...string) HostSet {
	set := make(HostSet, len(names))
	for _, name := range names {
		set.Add(name)
	}
	return set
}

func (s HostSet) Add(name string) {
	s[name] = struct{}{}
}

func (s HostSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s HostSet) Len() int {
	return len(s)
}

// Difference returns the hosts in s that are not in other.
func (s HostSet) Difference(other HostSet) HostSet {
	out := make(HostSet)
	for name := range s {
		if !other.Has(name) {
			out.Add(name)
		}
	}
	return out
}

// Sorted returns the host names in lexical order.
func (s HostSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delta returns the hosts Foreman knows about that PuppetDB does not.
func Delta(puppetdbHosts, foremanHosts HostSet) HostSet {
	return foremanHosts.Difference(puppetdbHosts)
}
