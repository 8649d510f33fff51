package core

// Closed vocabularies. Each type lists its members in display order.

type (
	Category  string
	Tag       string
	Frequency string
	Priority  string
)

const (
	FoodAndDining  Category = "Food & Dining"
	Transportation Category = "Transportation"
	Housing        Category = "Housing"
	Shopping       Category = "Shopping"
	Entertainment  Category = "Entertainment"
	Healthcare     Category = "Healthcare"
	OtherCategory  Category = "Other"
)

const (
	Essential Tag = "Essential"
	Luxury    Tag = "Luxury"
	Business  Tag = "Business"
	Personal  Tag = "Personal"
	Urgent    Tag = "Urgent"
	Necessary Tag = "Necessary"
	Optional  Tag = "Optional"
)

const (
	OneTime Frequency = "One-time"
	Daily   Frequency = "Daily"
	Weekly  Frequency = "Weekly"
	Monthly Frequency = "Monthly"
	Yearly  Frequency = "Yearly"
)

const (
	Low      Priority = "Low"
	Medium   Priority = "Medium"
	High     Priority = "High"
	Critical Priority = "Critical"
)

// Wildcard is the selector value that matches every category or priority.
const Wildcard = "All"

func Categories() []Category {
	return []Category{FoodAndDining, Transportation, Housing, Shopping, Entertainment, Healthcare, OtherCategory}
}

func Tags() []Tag {
	return []Tag{Essential, Luxury, Business, Personal, Urgent, Necessary, Optional}
}

func Frequencies() []Frequency {
	return []Frequency{OneTime, Daily, Weekly, Monthly, Yearly}
}

// Priorities returns the levels in ascending order.
func Priorities() []Priority {
	return []Priority{Low, Medium, High, Critical}
}

func (c Category) Valid() bool {
	switch c {
	case FoodAndDining, Transportation, Housing, Shopping, Entertainment, Healthcare, OtherCategory:
		return true
	default:
		return false
	}
}

func (t Tag) Valid() bool {
	switch t {
	case Essential, Luxury, Business, Personal, Urgent, Necessary, Optional:
		return true
	default:
		return false
	}
}

func (f Frequency) Valid() bool {
	switch f {
	case OneTime, Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities: Low=0 ... Critical=3, -1 if unknown.
func (p Priority) Rank() int {
	switch p {
	case Low:
		return 0
	case Medium:
		return 1
	case High:
		return 2
	case Critical:
		return 3
	default:
		return -1
	}
}
