package capture

import (
	"sort"
	"strings"
	"unicode"
)

type productKey struct {
	name, brand, size string
}

// Aggregate merges detections with the same (name, brand, size) and sums
// their quantities. A detection with no quantity counts as one. The result
// is sorted by name, then brand, then size.
func Aggregate(detections []Product) []Product {
	if len(detections) == 0 {
		return []Product{}
	}

	index := make(map[productKey]int)
	var out []Product
	for _, d := range detections {
		q := d.Quantity
		if q < 1 {
			q = 1
		}
		k := productKey{d.Name, d.Brand, d.Size}
		if i, ok := index[k]; ok {
			out[i].Quantity += q
			continue
		}
		index[k] = len(out)
		out = append(out, Product{Name: d.Name, Brand: d.Brand, Size: d.Size, Quantity: q})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Brand != b.Brand {
			return a.Brand < b.Brand
		}
		return a.Size < b.Size
	})
	return out
}

// Placeholders for class labels that carry no brand or size.
const (
	GenericBrand = "Generic"
	UnknownSize  = "N/A"
)

// ParseLabel turns a model class label into a product. Labels of the form
// Brand_Size_Name (e.g. "CocaCola_1.5L_Bottle") are split; anything else
// becomes a generic product named after the label.
func ParseLabel(label string) Product {
	label = strings.TrimSpace(label)
	parts := strings.Split(label, "_")
	if len(parts) >= 3 {
		return Product{
			Name:     capitalize(strings.Join(parts[2:], " ")),
			Brand:    parts[0],
			Size:     parts[1],
			Quantity: 1,
		}
	}
	return Product{Name: capitalize(strings.ReplaceAll(label, "_", " ")), Brand: GenericBrand, Size: UnknownSize, Quantity: 1}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
