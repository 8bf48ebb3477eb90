package model

import "strings"

// FieldSpec describes one field an Intent extracts from conversation.
// Intents are stored and served with fieldsToExtract in this array shape; a
// stored plain-string value is not converted and fails to decode
// (DESIGN.md open question #4).
type FieldSpec struct {
	Name        string `bson:"name" json:"name"`
	Type        string `bson:"type,omitempty" json:"type,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Example     string `bson:"example,omitempty" json:"example,omitempty"`
	Validation  string `bson:"validation,omitempty" json:"validation,omitempty"`
}

// Intent is a single conversational objective. IDWithinSection is
// numeric and unique within its owning Section, and is serialized as the
// numeric "id" on the wire.
type Intent struct {
	IDWithinSection int         `bson:"idWithinSection" json:"id"`
	Order           int         `bson:"order" json:"-"`
	Intent          string      `bson:"intent" json:"intent"`
	IsMandatory     bool        `bson:"isMandatory" json:"isMandatory"`
	RetryLimit      int         `bson:"retryLimit" json:"retryLimit"`
	FieldsToExtract []FieldSpec `bson:"fieldsToExtract,omitempty" json:"fieldsToExtract,omitempty"`
	Context         string      `bson:"context,omitempty" json:"context,omitempty"`
}

// LooksLikeIntroduction applies the introduction-intent heuristic: the
// prompt text contains "introduction" case-insensitively, or the intent's
// numeric id falls in the reserved introduction-id band (id < 1000, by
// convention all real intent ids in this system start at 1000+).
func (i Intent) LooksLikeIntroduction() bool {
	if strings.Contains(strings.ToLower(i.Intent), "introduction") {
		return true
	}
	return i.IDWithinSection > 0 && i.IDWithinSection < 1000
}

// Section is a named grouping of intents.
type Section struct {
	SectionID    string   `bson:"sectionId" json:"id"`
	AgentID      string   `bson:"agentId" json:"-"`
	Name         string   `bson:"name" json:"name"`
	About        string   `bson:"about,omitempty" json:"about,omitempty"`
	Guidelines   string   `bson:"guidelines,omitempty" json:"guidelines,omitempty"`
	Order        int      `bson:"order" json:"-"`
	Introduction []Intent `bson:"-" json:"introduction"`
	Intents      []Intent `bson:"-" json:"intents"`
}

// Agent is the stored agent header; sections and intents live in their
// own collections and are assembled by the Agent Catalog.
type Agent struct {
	AgentID string   `bson:"agentId" json:"_id"`
	Name    string   `bson:"name" json:"name"`
	About   string   `bson:"about,omitempty" json:"about,omitempty"`
	Mode    []string `bson:"mode,omitempty" json:"mode,omitempty"`
}

// CompiledAgent is the denormalized, traversable document the catalog
// produces and the wire format the client receives.
type CompiledAgent struct {
	AgentID  string    `json:"_id"`
	Name     string    `json:"name"`
	About    string    `json:"about,omitempty"`
	Mode     []string  `json:"mode,omitempty"`
	Sections []Section `json:"sections"`
}

// FindIntent locates an intent by section id and intent id within the
// compiled view, searching both Introduction and Intents.
func (c *CompiledAgent) FindIntent(sectionID string, intentID int) (Intent, bool) {
	for _, s := range c.Sections {
		if s.SectionID != sectionID {
			continue
		}
		for _, i := range s.Introduction {
			if i.IDWithinSection == intentID {
				return i, true
			}
		}
		for _, i := range s.Intents {
			if i.IDWithinSection == intentID {
				return i, true
			}
		}
	}
	return Intent{}, false
}
