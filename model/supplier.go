package model

// Model is one model offered by a supplier.
type Model struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Skills      []string `json:"skills,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ModelGroup is a named family of models, e.g. "GPT-4".
type ModelGroup struct {
	ID        string  `json:"id"`
	GroupName string  `json:"groupName"`
	Models    []Model `json:"models"`
}

// Supplier is an API provider configuration.
type Supplier struct {
	Name        string       `json:"name"`
	Label       string       `json:"label"`
	Logo        string       `json:"logo,omitempty"`
	APIKey      string       `json:"apiKey,omitempty"`
	APIURL      string       `json:"apiUrl"`
	DocsURL     string       `json:"docsUrl,omitempty"`
	WebsiteURL  string       `json:"websiteUrl,omitempty"`
	APIKeyURL   string       `json:"apiKeyUrl,omitempty"`
	ModelGroups []ModelGroup `json:"modelGroups"`
	IsDefault   bool         `json:"isDefault"`
}

// Clone returns a deep copy of the supplier.
func (s Supplier) Clone() Supplier {
	out := s
	out.ModelGroups = make([]ModelGroup, len(s.ModelGroups))
	for i, g := range s.ModelGroups {
		g.Models = append([]Model(nil), g.Models...)
		for j := range g.Models {
			g.Models[j].Skills = append([]string(nil), g.Models[j].Skills...)
		}
		out.ModelGroups[i] = g
	}
	return out
}

// HasKey reports whether an API key has been configured.
func (s Supplier) HasKey() bool {
	return s.APIKey != ""
}

// FindModel looks a model up across all groups.
func (s Supplier) FindModel(id string) (Model, bool) {
	for _, g := range s.ModelGroups {
		for _, m := range g.Models {
			if m.ID == id {
				return m, true
			}
		}
	}
	return Model{}, false
}

// AvailableModel is a flattened catalog entry.
type AvailableModel struct {
	Ref           string // supplier/modelID
	SupplierName  string
	SupplierLabel string
	SupplierLogo  string
	Group         string
	Model         Model
}
