package catalog

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

var seedNamespace = uuid.MustParse("6f1d0c56-3b1e-4b7a-9f53-2c6b8f0a1d42")

type itemKind struct {
	category    string
	subcategory string
	sizes       []string
	materials   []string
	minCents    int64
	maxCents    int64
}

var itemKinds = []itemKind{
	{CategoryClothing, "dress", []string{"XS", "S", "M", "L", "XL"}, []string{"cotton", "linen", "silk"}, 2999, 14999},
	{CategoryClothing, "jeans", []string{"28", "30", "32", "34", "36"}, []string{"denim"}, 3999, 12999},
	{CategoryClothing, "t-shirt", []string{"S", "M", "L", "XL"}, []string{"cotton", "polyester"}, 999, 3999},
	{CategoryClothing, "jacket", []string{"S", "M", "L", "XL"}, []string{"leather", "wool", "nylon"}, 5999, 29999},
	{CategoryClothing, "sweater", []string{"S", "M", "L"}, []string{"wool", "cashmere", "cotton"}, 3499, 17999},
	{CategoryFootwear, "sneakers", []string{"7", "8", "9", "10", "11"}, []string{"canvas", "mesh", "leather"}, 4999, 17999},
	{CategoryFootwear, "boots", []string{"7", "8", "9", "10", "11"}, []string{"leather", "suede"}, 7999, 24999},
	{CategoryFootwear, "sandals", []string{"6", "7", "8", "9", "10"}, []string{"leather", "rubber"}, 1999, 8999},
	{CategoryFootwear, "loafers", []string{"8", "9", "10", "11"}, []string{"leather", "suede"}, 6999, 19999},
}

var (
	colors  = []string{"red", "blue", "black", "white", "green", "beige", "navy", "pink", "grey", "brown"}
	brands  = []string{"Northwind", "Alder & Co", "Solstice", "Urban Trail", "Maple Row", "Kestrel"}
	genders = []string{"women", "men", "unisex"}
)

// Generator produces a deterministic apparel catalog for a given seed.
type Generator struct {
	rnd      *rand.Rand
	sequence int64
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Next() Apparel {
	g.sequence++
	kind := itemKinds[g.rnd.Intn(len(itemKinds))]
	color := pickOne(g.rnd, colors)
	brand := pickOne(g.rnd, brands)
	gender := pickOne(g.rnd, genders)
	material := pickOne(g.rnd, kind.materials)
	price := kind.minCents + g.rnd.Int63n(kind.maxCents-kind.minCents+1)
	// round to a .99 price point
	price = price/100*100 + 99

	name := fmt.Sprintf("%s %s %s", titleCase(color), titleCase(material), titleCase(kind.subcategory))
	return Apparel{
		ID:          uuid.NewSHA1(seedNamespace, []byte(fmt.Sprintf("apparel-%d", g.sequence))).String(),
		Name:        name,
		Category:    kind.category,
		Subcategory: kind.subcategory,
		Gender:      gender,
		Color:       color,
		Size:        pickOne(g.rnd, kind.sizes),
		Brand:       brand,
		Material:    material,
		PriceCents:  price,
		InStock:     g.rnd.Intn(10) > 0,
		Description: fmt.Sprintf("%s %s %s by %s for %s.", titleCase(color), material, kind.subcategory, brand, gender),
	}
}

func (g *Generator) Batch(n int) []Apparel {
	out := make([]Apparel, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

func titleCase(value string) string {
	parts := strings.Split(value, "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "-")
}

// garmentNouns extends the generated subcategories with apparel a live
// catalog may carry.
var garmentNouns = []string{
	"shirt", "blouse", "coat", "parka", "scarf", "scarves", "hat", "cap",
	"skirt", "shorts", "trousers", "pants", "leggings", "hoodie", "cardigan",
	"blazer", "vest", "socks", "gloves", "shoes", "heels", "slippers",
	"trainers", "clogs", "pumps", "apparel", "clothes", "clothing", "footwear",
}

// Terms returns the lowercase words that name a product kind, color or
// material.
func Terms() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 96)
	add := func(values ...string) {
		for _, value := range values {
			value = strings.ToLower(value)
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, value)
		}
	}
	for _, kind := range itemKinds {
		add(kind.category, kind.subcategory)
		add(kind.materials...)
	}
	add(colors...)
	add(garmentNouns...)
	return out
}
