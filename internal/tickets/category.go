package tickets

import (
	"strings"
	"unicode"
)

type Category struct {
	Slug        string
	Name        string
	Emoji       string
	Description string
}

func DefaultCategories() []Category {
	return []Category{
		{Name: "General Support", Emoji: "🎫", Description: "General questions and help"},
		{Name: "Bug Report", Emoji: "🐛", Description: "Report a bug or an issue"},
		{Name: "Feature Request", Emoji: "💡", Description: "Suggest a new feature"},
		{Name: "Moderation Appeal", Emoji: "⚖️", Description: "Appeal a moderation action"},
	}
}

// Slugify turns a display name into the token carried in component ids.
// Only letters and digits survive; runs of anything else become one "_".
func Slugify(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "_")
}

// Catalogue is the fixed set of categories a guild offers.
type Catalogue struct {
	list   []Category
	bySlug map[string]Category
}

func NewCatalogue(categories []Category) *Catalogue {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	c := &Catalogue{bySlug: make(map[string]Category, len(categories))}
	for _, cat := range categories {
		if cat.Slug == "" {
			cat.Slug = Slugify(cat.Name)
		}
		if _, dup := c.bySlug[cat.Slug]; dup || cat.Slug == "" {
			continue
		}
		c.list = append(c.list, cat)
		c.bySlug[cat.Slug] = cat
	}
	return c
}

func (c *Catalogue) All() []Category {
	return append([]Category(nil), c.list...)
}

func (c *Catalogue) Lookup(slug string) (Category, bool) {
	cat, ok := c.bySlug[slug]
	return cat, ok
}
