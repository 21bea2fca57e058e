package aigc

import "strings"

// Company is a vendor whose documentation the agent answers about
type Company struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// Model is a backend agent selectable by bot users
type Model struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"` // backend endpoint
}

type Preset struct {
	Welcome      string    `json:"welcome,omitempty" yaml:"welcome,omitempty"`
	Instructions string    `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Companies    []Company `json:"companies,omitempty" yaml:"companies,omitempty"`
	Models       []Model   `json:"models,omitempty" yaml:"models,omitempty"`
}

// defaults
var (
	DefaultCompanies = []Company{
		{Code: "amazone", Name: "Amazone"},
		{Code: "kverneland", Name: "Kverneland"},
	}
	DefaultModels = []Model{
		{Code: "GPT4o", Name: "OpenAI GPT-4o", Path: "/api/agent"},
		{Code: "GigaChat-MAX", Name: "СБЕР GigaChat-MAX", Path: "/api/agent_gigachat"},
	}
)

// WithDefaults fills empty lists
func (z Preset) WithDefaults() Preset {
	if len(z.Companies) == 0 {
		z.Companies = DefaultCompanies
	}
	if len(z.Models) == 0 {
		z.Models = DefaultModels
	}
	return z
}

// Company finds by code, case insensitive
func (z Preset) Company(code string) (Company, bool) {
	for _, c := range z.Companies {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return Company{}, false
}

// Model finds by code
func (z Preset) Model(code string) (Model, bool) {
	for _, m := range z.Models {
		if m.Code == code {
			return m, true
		}
	}
	return Model{}, false
}
