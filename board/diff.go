package board

import (
	"encoding/json"
	"slices"
)

// OpKind is the kind of a patch operation.
type OpKind string

const (
	// OpSetField updates one field of one existing row.
	OpSetField OpKind = "set_field"
	// OpSetFooter updates a section footer.
	OpSetFooter OpKind = "set_footer"
	// OpReplaceSection rebuilds a whole section.
	OpReplaceSection OpKind = "replace_section"
	// OpPrependRows inserts rows at the top of a section.
	OpPrependRows OpKind = "prepend_rows"
)

// PatchOp is one change for a renderer to apply.
type PatchOp struct {
	Kind    OpKind `json:"kind"`
	Section string `json:"section"`
	Key     string `json:"key,omitempty"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Rows    []Row  `json:"rows,omitempty"`
}

// Patch is an ordered list of operations.
type Patch struct {
	Ops []PatchOp `json:"ops"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool { return len(p.Ops) == 0 }

// Fingerprint is a stable serialization of a section used to skip sections
// that did not change.
func Fingerprint(s Section) string {
	b, err := json.Marshal(s)
	if err != nil {
		// Sections hold only strings; this cannot fail.
		panic(err)
	}
	return string(b)
}

// Diff computes the operations turning prev into next, section by section:
//   - an unchanged fingerprint produces nothing;
//   - the same ordered keys produce field-level updates only;
//   - different keys replace the section.
//
// Sections absent from prev are replaced wholesale.
func Diff(prev, next Snapshot) Patch {
	var p Patch
	for _, ns := range next.Sections {
		ps, ok := prev.Section(ns.Name)
		if !ok {
			p.Ops = append(p.Ops, replaceOp(ns))
			continue
		}
		p.Ops = append(p.Ops, DiffSection(ps, ns)...)
	}
	return p
}

// DiffSection diffs two versions of the same section.
func DiffSection(prev, next Section) []PatchOp {
	if Fingerprint(prev) == Fingerprint(next) {
		return nil
	}
	if !slices.Equal(prev.Keys(), next.Keys()) {
		return []PatchOp{replaceOp(next)}
	}
	var ops []PatchOp
	for i, nr := range next.Rows {
		pr := prev.Rows[i]
		for _, f := range nr.Fields {
			if pr.Get(f.Name) != f.Value || !hasField(pr, f.Name) {
				ops = append(ops, PatchOp{Kind: OpSetField, Section: next.Name, Key: nr.Key, Field: f.Name, Value: f.Value})
			}
		}
	}
	if prev.Footer != next.Footer {
		ops = append(ops, PatchOp{Kind: OpSetFooter, Section: next.Name, Value: next.Footer})
	}
	return ops
}

func hasField(r Row, name string) bool {
	for _, f := range r.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func replaceOp(s Section) PatchOp {
	return PatchOp{Kind: OpReplaceSection, Section: s.Name, Rows: s.Rows, Value: s.Footer}
}
