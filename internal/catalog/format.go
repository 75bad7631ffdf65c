package catalog

import (
	"fmt"
	"strings"
)

// Bucket is one prefix group of a formatted listing.
type Bucket struct {
	Label string
	Count int
}

// Listing is the grouped view of a category used by [Formatter.Format].
type Listing struct {
	// Singles holds the display names without an underscore, in catalog order.
	Singles []string

	// Sets holds one bucket per distinct prefix, ordered by first appearance.
	Sets []Bucket
}

// Formatter renders a category of the catalog as readable text. Variants that
// share an underscore prefix (laser_1, laser_2, …) are collapsed into a single
// labelled count so large variant sets stay short.
type Formatter struct {
	catalog *Catalog
}

// NewFormatter creates a formatter reading from c.
func NewFormatter(c *Catalog) *Formatter {
	return &Formatter{catalog: c}
}

// Group partitions the display names of cat into singles and prefix sets.
func (f *Formatter) Group(cat Category) Listing {
	var l Listing
	index := make(map[string]int)
	for _, a := range f.catalog.list(cat) {
		if !a.HasSet {
			l.Singles = append(l.Singles, a.DisplayName)
			continue
		}
		i, ok := index[a.SetPrefix]
		if !ok {
			i = len(l.Sets)
			index[a.SetPrefix] = i
			l.Sets = append(l.Sets, Bucket{Label: a.SetPrefix})
		}
		l.Sets[i].Count++
	}
	return l
}

// listLineWidth is the byte width after which a listing wraps to a new line,
// so message chunking can always cut between entries.
const listLineWidth = 160

// Format returns the Discord-markdown listing of cat. The Singles section is
// always present; the Sets section only when at least one set exists. Long
// sections wrap after listLineWidth bytes.
func (f *Formatter) Format(cat Category) string {
	l := f.Group(cat)

	var b strings.Builder
	b.WriteString("**Singles**\n")
	if len(l.Singles) == 0 {
		b.WriteString("(none)")
	}
	singles := make([]string, len(l.Singles))
	for i, name := range l.Singles {
		singles[i] = fmt.Sprintf("`%s`", name)
	}
	writeWrapped(&b, singles)

	if len(l.Sets) > 0 {
		b.WriteString("\n\n**Sets**\n")
		sets := make([]string, len(l.Sets))
		for i, s := range l.Sets {
			sets[i] = fmt.Sprintf("`%s` (%d)", s.Label, s.Count)
		}
		writeWrapped(&b, sets)
	}
	return b.String()
}

// writeWrapped joins items with ", " and starts a new line instead once the
// current line would pass listLineWidth.
func writeWrapped(b *strings.Builder, items []string) {
	width := 0
	for i, item := range items {
		if i > 0 {
			if width+2+len(item) > listLineWidth {
				b.WriteString(",\n")
				width = 0
			} else {
				b.WriteString(", ")
				width += 2
			}
		}
		b.WriteString(item)
		width += len(item)
	}
}
