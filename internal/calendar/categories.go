package calendar

// CategoryScope decides whose rows feed ListCategories.
type CategoryScope string

const (
	// CategoryScopeOwner aggregates only the caller's own events.
	CategoryScopeOwner CategoryScope = "owner"
	// CategoryScopeGlobal aggregates every row the store exposes, giving a
	// shared category taxonomy across principals.
	CategoryScopeGlobal CategoryScope = "global"
)

// AggregateCategories keeps the first-seen order of category names and the
// color of the first event seen in each. Every event it is given counts: the
// NULL-category rows are already excluded by the query.
func AggregateCategories(events []Event) []CategorySummary {
	out := make([]CategorySummary, 0)
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.Category]; ok {
			continue
		}
		seen[ev.Category] = struct{}{}
		out = append(out, CategorySummary{Name: ev.Category, Color: ev.Color})
	}
	return out
}

func categoryQuery(scope CategoryScope, principalID string) Query {
	q := Query{}
	if scope != CategoryScopeGlobal {
		q = ownerQuery(principalID)
	}
	return q.NotNull(ColumnCategory).OrderAsc(ColumnStartTime)
}
