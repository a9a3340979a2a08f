// Package partition maps index values onto named partitions and orders
// populated partition names. Partitioners are pure: they never touch the
// storage adapter.
package partition

import (
	"sort"
	"strings"
)

// Range is the first and last populated partition under a partitioner's
// natural order.
type Range struct {
	First string
	Last  string
}

// Partitioner maps an index value to a partition name and computes the
// populated range from a name list.
type Partitioner interface {
	// Partition returns the partition name for an index value. It fails
	// only for index values of a mismatched kind.
	Partition(index any) (string, error)

	// Range returns the first and last of the given names under the
	// partitioner's natural order. FixedSize and YearMonth report
	// ok=false for an empty input; Single always reports its one name.
	Range(names []string) (r Range, ok bool)
}

// sortNames orders names by a numeric rank, falling back to raw string
// order when two ranks tie.
func sortNames(names []string, rank func(string) float64) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i]), rank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return strings.Compare(sorted[i], sorted[j]) < 0
	})
	return sorted
}

// Single maps every index value to one fixed partition.
type Single struct {
	name string
}

// NewSingle creates a partitioner that always answers name.
func NewSingle(name string) *Single {
	return &Single{name: name}
}

func (s *Single) Partition(index any) (string, error) {
	return s.name, nil
}

func (s *Single) Range(names []string) (Range, bool) {
	return Range{First: s.name, Last: s.name}, true
}
