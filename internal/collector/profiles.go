package collector

import (
	"fmt"
	"strings"

	"github.com/AMDResearch/pmc-collector/internal/rocm"
	"github.com/AMDResearch/pmc-collector/pkg/logutil"
	"go.uber.org/zap"
)

// cachedProfile pairs a materialized profile with its expected record count,
// computed once when the profile is built and reused to size every sample
// buffer afterwards.
type cachedProfile struct {
	id      rocm.ProfileID
	records int
}

// profileCache maps requested counter name sequences to profiles. The key is
// the verbatim ordered sequence: the same names in a different order are a
// different profile. Entries are never evicted; the set of distinct requests
// a process makes is expected to be small and fixed.
type profileCache struct {
	lib     rocm.Library
	agent   rocm.AgentID
	catalog *Catalog
	entries map[string]cachedProfile
}

func newProfileCache(lib rocm.Library, agent rocm.AgentID, catalog *Catalog) *profileCache {
	return &profileCache{
		lib:     lib,
		agent:   agent,
		catalog: catalog,
		entries: make(map[string]cachedProfile),
	}
}

// requestKey flattens an ordered counter request into a cache key. Counter
// names never contain the separator.
func requestKey(names []string) string {
	return strings.Join(names, "\x1f")
}

// resolve returns the profile for the request, building and caching it on
// first use. Unknown counter names are warned about and dropped; the profile
// is built from whatever resolved, so a bad name never fails the request.
func (p *profileCache) resolve(names []string) (cachedProfile, error) {
	key := requestKey(names)
	if entry, ok := p.entries[key]; ok {
		return entry, nil
	}

	supported, err := p.catalog.SupportedCounters()
	if err != nil {
		return cachedProfile{}, err
	}

	logger := logutil.GetLogger()
	var ids []rocm.CounterID
	expected := 0
	for _, name := range names {
		id, ok := supported[name]
		if !ok {
			logger.Warn("counter not found, dropping from profile",
				zap.String("counter", name),
				zap.Uint64("agent", uint64(p.agent)))
			continue
		}
		count, err := p.catalog.InstanceCount(id)
		if err != nil {
			return cachedProfile{}, err
		}
		ids = append(ids, id)
		expected += int(count)
	}

	profile, err := p.lib.CreateProfile(p.agent, ids)
	if err != nil {
		return cachedProfile{}, fmt.Errorf("creating profile: %w", err)
	}

	entry := cachedProfile{id: profile, records: expected}
	p.entries[key] = entry
	return entry, nil
}
