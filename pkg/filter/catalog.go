package filter

// Category is one selectable filter option.
type Category struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	PrimaryFilter bool   `json:"primaryFilter"`
}

// Catalog is the ordered, read-only list of categories a user can filter by.
type Catalog struct {
	categories []Category
	index      map[string]int
}

// NewCatalog builds a catalog preserving the given order.
// Later duplicates of an id are dropped.
func NewCatalog(categories []Category) Catalog {
	c := Catalog{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}
	for _, cat := range categories {
		if _, dup := c.index[cat.ID]; dup {
			continue
		}
		c.index[cat.ID] = len(c.categories)
		c.categories = append(c.categories, cat)
	}
	return c
}

// Lookup returns the category with the given id.
func (c Catalog) Lookup(id string) (Category, bool) {
	i, ok := c.index[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// Contains reports whether id names a known category.
func (c Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Title returns the display title for id, falling back to the id itself.
func (c Catalog) Title(id string) string {
	if cat, ok := c.Lookup(id); ok {
		return cat.Title
	}
	return id
}

// All returns every category in catalog order.
func (c Catalog) All() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Visible returns the categories shown in the filter list. Collapsed lists
// only show primary filters.
func (c Catalog) Visible(expanded bool) []Category {
	if expanded {
		return c.All()
	}
	out := make([]Category, 0, len(c.categories))
	for _, cat := range c.categories {
		if cat.PrimaryFilter {
			out = append(out, cat)
		}
	}
	return out
}

// Len returns the number of categories.
func (c Catalog) Len() int {
	return len(c.categories)
}

// DefaultCatalog returns the stock category list of the directory.
func DefaultCatalog() Catalog {
	return NewCatalog([]Category{
		{ID: "illustration", Title: "Illustration", PrimaryFilter: true},
		{ID: "product-design", Title: "Product Design", PrimaryFilter: true},
		{ID: "ux-research", Title: "UX Research", PrimaryFilter: true},
		{ID: "art-direction", Title: "Art Direction", PrimaryFilter: true},
		{ID: "brand-identity", Title: "Brand Identity", PrimaryFilter: true},
		{ID: "design-systems", Title: "Design Systems", PrimaryFilter: true},
		{ID: "type-design", Title: "Type Design", PrimaryFilter: true},
		{ID: "animation", Title: "Animation", PrimaryFilter: true},
		{ID: "content-strategy", Title: "Content Strategy", PrimaryFilter: false},
		{ID: "creative-coding", Title: "Creative Coding", PrimaryFilter: false},
		{ID: "data-visualization", Title: "Data Visualization", PrimaryFilter: false},
		{ID: "design-management", Title: "Design Management", PrimaryFilter: false},
		{ID: "education", Title: "Education", PrimaryFilter: false},
		{ID: "game-design", Title: "Game Design", PrimaryFilter: false},
		{ID: "industrial-design", Title: "Industrial Design", PrimaryFilter: false},
		{ID: "photography", Title: "Photography", PrimaryFilter: false},
		{ID: "speaker", Title: "Speaker", PrimaryFilter: false},
		{ID: "writing", Title: "Writing", PrimaryFilter: false},
	})
}
