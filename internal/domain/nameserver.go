package domain

import "sort"

// NameserverGroup is a set of domains sharing an identical ordered
// nameserver pair. Groups exist so an operator can batch registrar updates
// during the human-gated step.
type NameserverGroup struct {
	Nameservers [2]string
	Domains     []string
}

// DomainCount returns the number of domains in the group.
func (g NameserverGroup) DomainCount() int { return len(g.Domains) }

// GroupNameservers partitions domains by exact ordered nameserver pair.
// Domains without an assigned pair are excluded. The same servers in a
// different order form a distinct group, matching registrar display.
// Groups are sorted by descending member count, ties broken by pair.
func GroupNameservers(domains []ProvisionDomain) []NameserverGroup {
	byPair := make(map[[2]string][]string)
	for i := range domains {
		d := &domains[i]
		if !d.HasNameservers() {
			continue
		}
		pair := [2]string{d.Nameserver1, d.Nameserver2}
		byPair[pair] = append(byPair[pair], d.Name)
	}

	groups := make([]NameserverGroup, 0, len(byPair))
	for pair, names := range byPair {
		sort.Strings(names)
		groups = append(groups, NameserverGroup{Nameservers: pair, Domains: names})
	}

	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Domains) != len(groups[j].Domains) {
			return len(groups[i].Domains) > len(groups[j].Domains)
		}
		if groups[i].Nameservers[0] != groups[j].Nameservers[0] {
			return groups[i].Nameservers[0] < groups[j].Nameservers[0]
		}
		return groups[i].Nameservers[1] < groups[j].Nameservers[1]
	})

	return groups
}
