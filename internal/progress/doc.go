// Package progress computes goal progress from session logs.
//
// Calendar windows start at local midnight, the Monday of the current week,
// or the first of the month in the location of now, and only their lower
// bound is checked. Custom windows run CustomDays days from the goal's
// creation and include both ends.
package progress
