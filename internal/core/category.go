package core

// CategoryRef is the category a bill is attributed to: either linked to a named
// category or explicitly unlinked. The zero value is Unlinked.
type CategoryRef struct {
	name   string
	linked bool
}

// Linked returns a reference to the named category. An empty name is unlinked.
func Linked(name string) CategoryRef {
	if name == "" {
		return Unlinked()
	}
	return CategoryRef{name: name, linked: true}
}

// Unlinked returns a reference for a bill with no category.
func Unlinked() CategoryRef {
	return CategoryRef{}
}

// IsLinked reports whether the reference names a category.
func (c CategoryRef) IsLinked() bool {
	return c.linked
}

// Name returns the linked category name and whether there is one.
func (c CategoryRef) Name() (string, bool) {
	return c.name, c.linked
}

// Label is the display name used when grouping spend.
func (c CategoryRef) Label() string {
	switch {
	case c.linked:
		return c.name
	default:
		return UncategorizedLabel
	}
}

// ColorPalette assigns display colours to categories by insertion index.
type ColorPalette []string

// DefaultPalette is the ten-colour palette used for category charts.
func DefaultPalette() ColorPalette {
	return ColorPalette{
		"#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0", "#9966FF",
		"#FF9F40", "#C9CBCF", "#7BC225", "#E7298A", "#1B9E77",
	}
}

// At returns the colour for the i-th category, cycling through the palette.
func (p ColorPalette) At(i int) string {
	if len(p) == 0 || i < 0 {
		return ""
	}
	return p[i%len(p)]
}
