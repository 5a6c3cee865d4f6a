// Package ast defines the typed document model for block programs: the
// variables a program declares and the chain of blocks it executes.
package ast

import "fmt"

// Document is a parsed block program.
type Document struct {
	Variables []Variable
	Entry     *Block
	Warnings  []Warning
}

// Variable is a heap slot declared in the document's variables section.
type Variable struct {
	Name    string
	Type    string // "" for scalars, "list" for lists, "broadcast_msg", ...
	ID      string
	IsLocal bool
	IsCloud bool
}

// Block is one executable unit. Next links the following statement.
type Block struct {
	Opcode  string
	ID      string
	Members []Member
	Next    *Block
}

// MemberKind tags the variants of Member.
type MemberKind int

const (
	MemberValue MemberKind = iota
	MemberStatement
	MemberField
)

// String returns the XML tag the kind is parsed from.
func (k MemberKind) String() string {
	switch k {
	case MemberValue:
		return "value"
	case MemberStatement:
		return "statement"
	case MemberField:
		return "field"
	default:
		return fmt.Sprintf("MemberKind(%d)", k)
	}
}

// Member is a named slot of a block. The only implementations are
// *Value, *Statement and *Field.
type Member interface {
	Kind() MemberKind
	SlotName() string
	member()
}

// ChildKind tags what a Value slot holds.
type ChildKind int

const (
	ChildBlock ChildKind = iota
	ChildShadow
)

// ValueChild is the content of a Value slot: a computed block or the
// literal shadow shown when nothing is connected. Exactly one is set.
type ValueChild struct {
	Kind   ChildKind
	Block  *Block
	Shadow *Shadow
}

// Value is an expression slot.
type Value struct {
	Name  string
	Child ValueChild
}

// Statement is a nested statement sequence, e.g. a loop body.
type Statement struct {
	Name  string
	Block *Block
}

// Field is an inline literal. Handlers decide whether Value is used as is
// or names a heap variable.
type Field struct {
	Name         string
	ID           string
	Value        string
	VariableType string
}

// Shadow is the default literal of an unconnected Value slot.
type Shadow struct {
	Type  string
	ID    string
	Field Field
}

// Warning records a structural oddity that parsing tolerated.
type Warning struct {
	BlockID string
	Opcode  string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("block %s (%s): %s", w.BlockID, w.Opcode, w.Message)
}

func (*Value) Kind() MemberKind     { return MemberValue }
func (*Statement) Kind() MemberKind { return MemberStatement }
func (*Field) Kind() MemberKind     { return MemberField }

func (v *Value) SlotName() string     { return v.Name }
func (s *Statement) SlotName() string { return s.Name }
func (f *Field) SlotName() string     { return f.Name }

func (*Value) member()     {}
func (*Statement) member() {}
func (*Field) member()     {}

// BlockValue builds a Value slot connected to a block.
func BlockValue(name string, b *Block) *Value {
	return &Value{Name: name, Child: ValueChild{Kind: ChildBlock, Block: b}}
}

// ShadowValue builds a Value slot holding only a shadow literal.
func ShadowValue(name string, s *Shadow) *Value {
	return &Value{Name: name, Child: ValueChild{Kind: ChildShadow, Shadow: s}}
}

// Len returns the number of blocks in the chain starting at b.
func (b *Block) Len() int {
	n := 0
	for ; b != nil; b = b.Next {
		n++
	}
	return n
}

// Last returns the final block of the chain starting at b.
func (b *Block) Last() *Block {
	if b == nil {
		return nil
	}
	for b.Next != nil {
		b = b.Next
	}
	return b
}

// Walk calls fn for every block reachable from b: the chain, blocks in
// value and statement slots, in document order. Returning false from fn
// skips the block's slots but not the rest of its chain.
func (b *Block) Walk(fn func(*Block) bool) {
	for ; b != nil; b = b.Next {
		if !fn(b) {
			continue
		}
		for _, m := range b.Members {
			switch m := m.(type) {
			case *Value:
				if m.Child.Kind == ChildBlock {
					m.Child.Block.Walk(fn)
				}
			case *Statement:
				m.Block.Walk(fn)
			}
		}
	}
}

// Opcodes returns the distinct opcodes reachable from the document's entry
// block in first-seen order.
func (d *Document) Opcodes() []string {
	seen := make(map[string]bool)
	var ops []string
	d.Entry.Walk(func(b *Block) bool {
		if !seen[b.Opcode] {
			seen[b.Opcode] = true
			ops = append(ops, b.Opcode)
		}
		return true
	})
	return ops
}

// Variable returns the declared variable with the given name.
func (d *Document) Variable(name string) (Variable, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}
