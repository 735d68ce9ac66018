package source

import (
	"slices"
	"strings"

	"github.com/maruel/natural"
)

const (
	SortNatural = iota
	SortSimple
	SortEntryOrder
)

// SortStrategy orders the entries of a book.
type SortStrategy interface {
	// Sort returns a sorted copy of names.
	Sort(names []string) []string
	Name() string
	// ID is the value stored in the config file.
	ID() int
}

// NaturalSortStrategy compares embedded numbers by value, so page2 comes
// before page10.
type NaturalSortStrategy struct{}

func (NaturalSortStrategy) Sort(names []string) []string {
	result := slices.Clone(names)
	slices.SortStableFunc(result, func(a, b string) int {
		switch {
		case natural.Less(a, b):
			return -1
		case natural.Less(b, a):
			return 1
		}
		return 0
	})
	return result
}

func (NaturalSortStrategy) Name() string { return "Natural" }
func (NaturalSortStrategy) ID() int      { return SortNatural }

type SimpleSortStrategy struct{}

func (SimpleSortStrategy) Sort(names []string) []string {
	result := slices.Clone(names)
	slices.SortStableFunc(result, strings.Compare)
	return result
}

func (SimpleSortStrategy) Name() string { return "Simple" }
func (SimpleSortStrategy) ID() int      { return SortSimple }

// EntryOrderSortStrategy keeps the container order.
type EntryOrderSortStrategy struct{}

func (EntryOrderSortStrategy) Sort(names []string) []string {
	return slices.Clone(names)
}

func (EntryOrderSortStrategy) Name() string { return "Entry Order" }
func (EntryOrderSortStrategy) ID() int      { return SortEntryOrder }

// GetSortStrategy returns the strategy for a config value, natural for
// unknown values.
func GetSortStrategy(id int) SortStrategy {
	switch id {
	case SortSimple:
		return SimpleSortStrategy{}
	case SortEntryOrder:
		return EntryOrderSortStrategy{}
	default:
		return NaturalSortStrategy{}
	}
}

func AllSortStrategies() []SortStrategy {
	return []SortStrategy{NaturalSortStrategy{}, SimpleSortStrategy{}, EntryOrderSortStrategy{}}
}
