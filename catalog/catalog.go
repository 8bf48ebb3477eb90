// Package catalog is the Agent Catalog: it compiles the agents,
// sections, and intents collections into a single traversable CompiledAgent
// document, the way fsrepo.NodeRepository compiles a filesystem tree of
// nodes into cached in-memory Node values.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/model"
	"github.com/ghiac/voicecoach/store"
)

// Catalog compiles and memoizes CompiledAgent documents.
type Catalog struct {
	storage store.Storage

	mu    sync.RWMutex
	cache map[string]*model.CompiledAgent
}

// New builds a Catalog backed by storage.
func New(storage store.Storage) *Catalog {
	return &Catalog{
		storage: storage,
		cache:   make(map[string]*model.CompiledAgent),
	}
}

// GetCompiledAgent loads the agent header, loads
// sections sorted by order, load each section's intents sorted by (order,
// idWithinSection), split the introduction intent out, attach section
// `about` as fallback context, and return the composed document. Returns
// (nil, nil) when the agent does not exist.
func (c *Catalog) GetCompiledAgent(ctx context.Context, agentID string) (*model.CompiledAgent, error) {
	if cached := c.fromCache(agentID); cached != nil {
		return cached, nil
	}

	agent, err := c.storage.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", agentID, err)
	}
	if agent == nil {
		return nil, nil
	}

	sections, err := c.storage.ListSections(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load sections for %s: %w", agentID, err)
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })

	compiled := &model.CompiledAgent{
		AgentID:  agent.AgentID,
		Name:     agent.Name,
		About:    agent.About,
		Mode:     agent.Mode,
		Sections: make([]model.Section, 0, len(sections)),
	}

	for _, section := range sections {
		intents, err := c.storage.ListIntents(ctx, agentID, section.SectionID)
		if err != nil {
			return nil, fmt.Errorf("load intents for section %s: %w", section.SectionID, err)
		}
		sort.Slice(intents, func(i, j int) bool {
			if intents[i].Order != intents[j].Order {
				return intents[i].Order < intents[j].Order
			}
			return intents[i].IDWithinSection < intents[j].IDWithinSection
		})

		introduction, rest := splitIntroduction(intents)
		for idx := range rest {
			if rest[idx].Context == "" {
				rest[idx].Context = section.About
			}
		}
		for idx := range introduction {
			if introduction[idx].Context == "" {
				introduction[idx].Context = section.About
			}
		}

		section.Introduction = introduction
		section.Intents = rest
		compiled.Sections = append(compiled.Sections, section)
	}

	c.storeInCache(agentID, compiled)
	return compiled, nil
}

// splitIntroduction moves the first intent matching the introduction heuristic
// into its own slice, leaving the rest in original order.
func splitIntroduction(intents []model.Intent) (introduction []model.Intent, rest []model.Intent) {
	introIdx := -1
	for i, in := range intents {
		if in.LooksLikeIntroduction() {
			introIdx = i
			break
		}
	}
	if introIdx == -1 {
		return nil, intents
	}

	introduction = []model.Intent{intents[introIdx]}
	rest = make([]model.Intent, 0, len(intents)-1)
	rest = append(rest, intents[:introIdx]...)
	rest = append(rest, intents[introIdx+1:]...)
	return introduction, rest
}

func (c *Catalog) fromCache(agentID string) *model.CompiledAgent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[agentID]
}

func (c *Catalog) storeInCache(agentID string, compiled *model.CompiledAgent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[agentID] = compiled
}

// InvalidateCache drops the memoized compiled view for an agent (or all
// agents if agentID is empty), mirroring fsrepo.NodeRepository's
// InvalidateCache.
func (c *Catalog) InvalidateCache(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if agentID == "" {
		c.cache = make(map[string]*model.CompiledAgent)
		return
	}
	delete(c.cache, agentID)
	log.Log.Debugf("[Catalog] invalidated cached compiled agent %s", agentID)
}
