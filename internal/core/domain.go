package core

import (
	"errors"
	"strings"
	"time"
)

// Spending categories known to the analysis. The set is closed: every
// analysis reports on all of them, in this order.
const (
	CategoryHousing        Category = "HOUSING"
	CategoryFood           Category = "FOOD"
	CategoryTransportation Category = "TRANSPORTATION"
	CategoryUtilities      Category = "UTILITIES"
	CategoryHealthcare     Category = "HEALTHCARE"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryShopping       Category = "SHOPPING"
	CategoryEducation      Category = "EDUCATION"
	CategoryTravel         Category = "TRAVEL"
	CategoryOther          Category = "OTHER"
)

// DateLayout is the storage and display layout for period boundaries.
const DateLayout = "2006-01-02"

type (
	Category string

	// CategoryWeight is the target share (0-1) of total spend for a category.
	CategoryWeight struct {
		Category Category
		Weight   float64
	}

	User struct {
		ID     string
		Email  string
		Active bool
	}

	UserFilter struct {
		ActiveOnly bool
	}

	// UserQuery pages through the user directory by offset.
	UserQuery struct {
		Take  int
		Skip  int
		Where UserFilter
	}
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidWeight     = errors.New("invalid weight")
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrInvalidTransition = errors.New("invalid analysis run transition")
	ErrRunNotRunning     = errors.New("analysis run is no longer running")
)

var allCategories = []Category{
	CategoryHousing,
	CategoryFood,
	CategoryTransportation,
	CategoryUtilities,
	CategoryHealthcare,
	CategoryEntertainment,
	CategoryShopping,
	CategoryEducation,
	CategoryTravel,
	CategoryOther,
}

// AllCategories returns the known categories in canonical order.
func AllCategories() []Category {
	return append([]Category(nil), allCategories...)
}

// DefaultWeights returns the system-wide category targets. They sum to 1.
func DefaultWeights() []CategoryWeight {
	return []CategoryWeight{
		{Category: CategoryHousing, Weight: 0.30},
		{Category: CategoryFood, Weight: 0.15},
		{Category: CategoryTransportation, Weight: 0.10},
		{Category: CategoryUtilities, Weight: 0.08},
		{Category: CategoryHealthcare, Weight: 0.07},
		{Category: CategoryEntertainment, Weight: 0.07},
		{Category: CategoryShopping, Weight: 0.08},
		{Category: CategoryEducation, Weight: 0.05},
		{Category: CategoryTravel, Weight: 0.05},
		{Category: CategoryOther, Weight: 0.05},
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

func (c Category) IsValid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// Label returns a human readable name, e.g. "Transportation".
func (c Category) Label() string {
	s := strings.ToLower(string(c))
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (w CategoryWeight) Validate() error {
	if !w.Category.IsValid() {
		return ErrInvalidCategory
	}
	if w.Weight < 0 || w.Weight > 1 {
		return ErrInvalidWeight
	}
	return nil
}

// MergeWeights overlays user overrides on the system defaults. An override
// always wins for its category; categories absent from both are omitted.
func MergeWeights(defaults, overrides []CategoryWeight) []CategoryWeight {
	merged := make(map[Category]float64, len(defaults)+len(overrides))
	for _, w := range defaults {
		merged[w.Category] = w.Weight
	}
	for _, w := range overrides {
		merged[w.Category] = w.Weight
	}

	out := make([]CategoryWeight, 0, len(merged))
	for _, c := range allCategories {
		if weight, ok := merged[c]; ok {
			out = append(out, CategoryWeight{Category: c, Weight: weight})
		}
	}
	return out
}

// NormalizeDate truncates t to midnight UTC of its calendar day.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a period boundary using DateLayout.
func FormatDate(t time.Time) string {
	return NormalizeDate(t).Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return t, nil
}

// ValidatePeriod checks that both boundaries are set and ordered.
func ValidatePeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return ErrInvalidPeriod
	}
	if NormalizeDate(end).Before(NormalizeDate(start)) {
		return ErrInvalidPeriod
	}
	return nil
}
