package query

// Entry is a definition registered under a sequence number. Sequence
// numbers identify a query instance: two equal definitions registered
// twice are two entries.
type Entry struct {
	Seq int
	Def *Definition
}

// Group is one optimized query and the entries it replaces.
type Group struct {
	Query   *Definition
	Members []int // sequence numbers of the replaced entries
}

// Plan is the result of Optimize. Every input entry belongs to exactly one
// group.
type Plan []*Group

// GroupIndex maps every member sequence number to the index of its group.
func (p Plan) GroupIndex() map[int]int {
	index := make(map[int]int)
	for i, g := range p {
		for _, seq := range g.Members {
			index[seq] = i
		}
	}
	return index
}

// Optimize reduces the number of queries needed to serve entries.
//
// Per doctype, all id queries are merged into a single ids query and the
// remaining queries are deduplicated by structural equality. Doctypes appear
// in the plan in first-seen order, the merged id query before the others.
func Optimize(entries []Entry) Plan {
	var doctypes []string
	byDoctype := make(map[string][]Entry)
	for _, e := range entries {
		if _, ok := byDoctype[e.Def.Doctype]; !ok {
			doctypes = append(doctypes, e.Def.Doctype)
		}
		byDoctype[e.Def.Doctype] = append(byDoctype[e.Def.Doctype], e)
	}

	var plan Plan
	for _, doctype := range doctypes {
		var idEntries, others []Entry
		for _, e := range byDoctype[doctype] {
			if e.Def.IsIDQuery() {
				idEntries = append(idEntries, e)
			} else {
				others = append(others, e)
			}
		}

		if len(idEntries) > 0 {
			plan = append(plan, mergeIDQueries(doctype, idEntries))
		}
		plan = append(plan, deduplicate(others)...)
	}
	return plan
}

func mergeIDQueries(doctype string, entries []Entry) *Group {
	seen := make(map[string]bool)
	ids := []string{}
	members := make([]int, 0, len(entries))
	for _, e := range entries {
		for _, id := range e.Def.RequestedIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		members = append(members, e.Seq)
	}
	return &Group{Query: &Definition{Doctype: doctype, IDs: ids}, Members: members}
}

func deduplicate(entries []Entry) []*Group {
	var groups []*Group
	for _, e := range entries {
		var target *Group
		for _, g := range groups {
			if g.Query.Equal(e.Def) {
				target = g
				break
			}
		}
		if target == nil {
			target = &Group{Query: e.Def}
			groups = append(groups, target)
		}
		target.Members = append(target.Members, e.Seq)
	}
	return groups
}
