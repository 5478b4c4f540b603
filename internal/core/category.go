package core

import "strings"

// Category is an expense category label. The known labels form a closed set; any other
// string is an unrecognized category that renders like CategoryOther.
type Category string

const (
	CategoryFood          Category = "餐饮"
	CategoryTransport     Category = "交通"
	CategoryShopping      Category = "购物"
	CategoryBills         Category = "账单"
	CategoryEntertainment Category = "娱乐"
	CategoryHealthcare    Category = "健康"
	CategoryGroceries     Category = "日用"
	CategoryOther         Category = "其他"
)

// Categories lists the known categories in display order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryBills,
	CategoryEntertainment,
	CategoryHealthcare,
	CategoryGroceries,
	CategoryOther,
}

var palette = map[Category]string{
	CategoryFood:          "hsl(var(--chart-1))",
	CategoryTransport:     "hsl(var(--chart-2))",
	CategoryShopping:      "hsl(var(--chart-3))",
	CategoryBills:         "hsl(var(--chart-4))",
	CategoryEntertainment: "hsl(var(--chart-5))",
	CategoryHealthcare:    "hsl(var(--primary))",
	CategoryGroceries:     "hsl(var(--accent))",
	CategoryOther:         "hsl(var(--muted-foreground))",
}

var englishNames = map[Category]string{
	CategoryFood:          "Food",
	CategoryTransport:     "Transport",
	CategoryShopping:      "Shopping",
	CategoryBills:         "Bills",
	CategoryEntertainment: "Entertainment",
	CategoryHealthcare:    "Healthcare",
	CategoryGroceries:     "Groceries",
	CategoryOther:         "Other",
}

// Known reports whether c is one of the fixed categories.
func (c Category) Known() bool {
	_, ok := palette[c]
	return ok
}

// Color returns the display color token, falling back to the Other color.
func (c Category) Color() string {
	if color, ok := palette[c]; ok {
		return color
	}
	return palette[CategoryOther]
}

// English returns the English name, or "Other" for unrecognized labels.
func (c Category) English() string {
	if name, ok := englishNames[c]; ok {
		return name
	}
	return englishNames[CategoryOther]
}

// Normalize maps unrecognized labels to CategoryOther.
func (c Category) Normalize() Category {
	if c.Known() {
		return c
	}
	return CategoryOther
}

// ParseCategory accepts a Chinese label or its English name (case-insensitive).
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if c := Category(s); c.Known() {
		return c, true
	}
	for c, name := range englishNames {
		if strings.EqualFold(name, s) {
			return c, true
		}
	}
	return "", false
}
