package poller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/avntro/mission-control/board"
)

// ErrUnknownNode is returned when a patch addresses a row that was never
// rendered.
var ErrUnknownNode = errors.New("poller: unknown node")

// Renderer applies patches to whatever displays the dashboard.
type Renderer interface {
	Apply(p board.Patch) error
}

// Node is one rendered row. Its identity survives field updates.
type Node struct {
	Key    string
	fields []board.Field
}

// Get returns a field value.
func (n *Node) Get(name string) string {
	for _, f := range n.fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func (n *Node) set(name, value string) {
	for i := range n.fields {
		if n.fields[i].Name == name {
			n.fields[i].Value = value
			return
		}
	}
	n.fields = append(n.fields, board.Field{Name: name, Value: value})
}

type docSection struct {
	nodes  []*Node
	byKey  map[string]*Node
	footer string
}

func newNode(r board.Row) *Node {
	return &Node{Key: r.Key, fields: append([]board.Field(nil), r.Fields...)}
}

// Document is an in-memory keyed node tree. It counts how often each
// section was rebuilt so callers can tell in-place patches from rebuilds.
type Document struct {
	mu       sync.RWMutex
	sections map[string]*docSection
	order    []string
	rebuilds map[string]int
	onApply  func(*Document)
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		sections: map[string]*docSection{},
		rebuilds: map[string]int{},
	}
}

// OnApply registers fn to run after every applied patch, outside the lock.
func (d *Document) OnApply(fn func(*Document)) {
	d.mu.Lock()
	d.onApply = fn
	d.mu.Unlock()
}

func (d *Document) section(name string) *docSection {
	s, ok := d.sections[name]
	if !ok {
		s = &docSection{byKey: map[string]*Node{}}
		d.sections[name] = s
		d.order = append(d.order, name)
	}
	return s
}

// Apply executes every op in order. It stops at the first op that addresses
// a missing row.
func (d *Document) Apply(p board.Patch) error {
	err := d.apply(p)
	d.mu.RLock()
	fn := d.onApply
	d.mu.RUnlock()
	if fn != nil && !p.Empty() {
		fn(d)
	}
	return err
}

func (d *Document) apply(p board.Patch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, op := range p.Ops {
		switch op.Kind {
		case board.OpReplaceSection:
			s := d.section(op.Section)
			s.nodes = make([]*Node, 0, len(op.Rows))
			s.byKey = make(map[string]*Node, len(op.Rows))
			for _, r := range op.Rows {
				n := newNode(r)
				s.nodes = append(s.nodes, n)
				s.byKey[n.Key] = n
			}
			s.footer = op.Value
			d.rebuilds[op.Section]++
		case board.OpPrependRows:
			s := d.section(op.Section)
			fresh := make([]*Node, 0, len(op.Rows)+len(s.nodes))
			for _, r := range op.Rows {
				n := newNode(r)
				fresh = append(fresh, n)
				s.byKey[n.Key] = n
			}
			s.nodes = append(fresh, s.nodes...)
		case board.OpSetField:
			s, ok := d.sections[op.Section]
			if !ok {
				return fmt.Errorf("section %s: %w", op.Section, ErrUnknownNode)
			}
			n, ok := s.byKey[op.Key]
			if !ok {
				return fmt.Errorf("%s/%s: %w", op.Section, op.Key, ErrUnknownNode)
			}
			n.set(op.Field, op.Value)
		case board.OpSetFooter:
			d.section(op.Section).footer = op.Value
		default:
			return fmt.Errorf("unknown op %q", op.Kind)
		}
	}
	return nil
}

// Node returns the node for key in section.
func (d *Document) Node(section, key string) (*Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sections[section]
	if !ok {
		return nil, false
	}
	n, ok := s.byKey[key]
	return n, ok
}

// Field returns one field of one row, or "" when absent.
func (d *Document) Field(section, key, field string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.sections[section]; ok {
		if n, ok := s.byKey[key]; ok {
			return n.Get(field)
		}
	}
	return ""
}

// Rows returns a copy of a section's rows in display order.
func (d *Document) Rows(section string) []board.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sections[section]
	if !ok {
		return nil
	}
	out := make([]board.Row, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, board.Row{Key: n.Key, Fields: append([]board.Field(nil), n.fields...)})
	}
	return out
}

// Footer returns a section's footer.
func (d *Document) Footer(section string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.sections[section]; ok {
		return s.footer
	}
	return ""
}

// Rebuilds counts the full rebuilds of a section.
func (d *Document) Rebuilds(section string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rebuilds[section]
}

// Sections lists section names in first-rendered order.
func (d *Document) Sections() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}
