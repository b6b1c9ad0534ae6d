package deploy

import (
	"slices"
	"sort"
	"strings"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
)

// Templates is the read-only template catalog.
type Templates struct {
	list []model.AppTemplate
}

func NewTemplates(list []model.AppTemplate) *Templates {
	return &Templates{list: slices.Clone(list)}
}

// List returns templates in catalog order. category matches exactly
// (case-insensitive); search matches name, description or any tag.
func (t *Templates) List(category, search string) []model.AppTemplate {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]model.AppTemplate, 0, len(t.list))
	for _, tpl := range t.list {
		if category != "" && !strings.EqualFold(tpl.Category, category) {
			continue
		}
		if search != "" && !matches(tpl, search) {
			continue
		}
		out = append(out, tpl)
	}
	return out
}

func matches(tpl model.AppTemplate, q string) bool {
	if strings.Contains(strings.ToLower(tpl.Name), q) || strings.Contains(strings.ToLower(tpl.Description), q) {
		return true
	}
	for _, tag := range tpl.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (t *Templates) Get(id string) (model.AppTemplate, error) {
	for _, tpl := range t.list {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return model.AppTemplate{}, core.Errorf(core.NotFound, "template %s not found", id)
}

// Categories returns each category with its template count, sorted by name.
func (t *Templates) Categories() []model.TemplateCategory {
	counts := make(map[string]int)
	for _, tpl := range t.list {
		counts[tpl.Category]++
	}
	out := make([]model.TemplateCategory, 0, len(counts))
	for name, n := range counts {
		out = append(out, model.TemplateCategory{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
