package buildpack

// Describes one buildpack variant available for composition.
type Entry struct {
	Name      string                     // Variant identity, unique within the catalog.
	Ancestors []string                   // Names of more general variants this one builds on.
	New       func(root string) Buildpack // Constructs a fresh instance bound to a checkout.
}

// An ordered list of buildpack variants.
//
// Catalog order is significant: detection runs in this order, and it breaks
// ties between variants with equal order values.
type Catalog []Entry

// Looks up an entry by name.
func (c Catalog) lookup(name string) (Entry, bool) {
	for _, entry := range c {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}
