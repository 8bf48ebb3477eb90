package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ghiac/voicecoach/log"
	"github.com/ghiac/voicecoach/model"
	"github.com/ghiac/voicecoach/store"
)

// SeedDocument is the on-disk YAML shape of an agent definition file:
// an agent header plus its sections and intents, ready to upsert into
// storage.
type SeedDocument struct {
	Agent    SeedAgent     `yaml:"agent"`
	Sections []SeedSection `yaml:"sections"`
}

// SeedAgent mirrors model.Agent for YAML authoring.
type SeedAgent struct {
	AgentID string   `yaml:"agentId"`
	Name    string   `yaml:"name"`
	About   string   `yaml:"about"`
	Mode    []string `yaml:"mode"`
}

// SeedSection mirrors model.Section (minus the runtime-only Introduction and
// Intents split) for YAML authoring.
type SeedSection struct {
	SectionID  string       `yaml:"sectionId"`
	Name       string       `yaml:"name"`
	About      string       `yaml:"about"`
	Guidelines string       `yaml:"guidelines"`
	Order      int          `yaml:"order"`
	Intents    []SeedIntent `yaml:"intents"`
}

// SeedIntent mirrors model.Intent for YAML authoring.
type SeedIntent struct {
	ID              int               `yaml:"id"`
	Order           int               `yaml:"order"`
	Intent          string            `yaml:"intent"`
	IsMandatory     bool              `yaml:"isMandatory"`
	RetryLimit      int               `yaml:"retryLimit"`
	FieldsToExtract []model.FieldSpec `yaml:"fieldsToExtract"`
	Context         string            `yaml:"context"`
}

// LoadSeedFile reads and parses an agent definition file.
func LoadSeedFile(path string) (*SeedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &doc, nil
}

// ApplySeed upserts a parsed SeedDocument's agent, sections, and intents
// into storage, for bootstrapping a new deployment or refreshing fixtures in
// development. Call Catalog.InvalidateCache afterward so the next
// GetCompiledAgent reflects the new definition.
func ApplySeed(ctx context.Context, storage store.Storage, doc *SeedDocument) error {
	agent := model.Agent{AgentID: doc.Agent.AgentID, Name: doc.Agent.Name, About: doc.Agent.About, Mode: doc.Agent.Mode}
	if err := storage.PutAgent(ctx, agent); err != nil {
		return fmt.Errorf("apply seed agent %s: %w", doc.Agent.AgentID, err)
	}

	for _, section := range doc.Sections {
		modelSection := model.Section{
			SectionID:  section.SectionID,
			AgentID:    doc.Agent.AgentID,
			Name:       section.Name,
			About:      section.About,
			Guidelines: section.Guidelines,
			Order:      section.Order,
		}
		if err := storage.PutSection(ctx, doc.Agent.AgentID, modelSection); err != nil {
			return fmt.Errorf("apply seed section %s: %w", section.SectionID, err)
		}

		for _, intent := range section.Intents {
			modelIntent := model.Intent{
				IDWithinSection: intent.ID,
				Order:           intent.Order,
				Intent:          intent.Intent,
				IsMandatory:     intent.IsMandatory,
				RetryLimit:      intent.RetryLimit,
				FieldsToExtract: intent.FieldsToExtract,
				Context:         intent.Context,
			}
			if err := storage.PutIntent(ctx, doc.Agent.AgentID, section.SectionID, modelIntent); err != nil {
				return fmt.Errorf("apply seed intent %d in section %s: %w", intent.ID, section.SectionID, err)
			}
		}
	}

	log.Log.Infof("[Catalog] seeded agent %s with %d sections", doc.Agent.AgentID, len(doc.Sections))
	return nil
}
