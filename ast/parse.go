package ast

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/blockrun/tree"
)

// ErrMalformedDocument is wrapped by every structural parse failure.
var ErrMalformedDocument = errors.New("malformed document")

// Child tags of a block that carry editor state only.
var ignoredBlockChildren = map[string]bool{
	"mutation": true,
	"comment":  true,
	"data":     true,
}

// ParseOption configures Parse.
type ParseOption func(*parser)

// WithEntryTypes restricts entry candidates to top-level blocks whose
// opcode is one of types. Without it every top-level block is a candidate.
func WithEntryTypes(types ...string) ParseOption {
	return func(p *parser) {
		if p.entryTypes == nil {
			p.entryTypes = make(map[string]bool)
		}
		for _, t := range types {
			p.entryTypes[t] = true
		}
	}
}

type parser struct {
	entryTypes map[string]bool
	warnings   []Warning
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDocument, fmt.Sprintf(format, args...))
}

// Parse converts an attributed tree into a Document. No partial document
// is returned on failure.
func Parse(root tree.Node, opts ...ParseOption) (*Document, error) {
	if root == nil {
		return nil, malformed("no root element")
	}
	p := &parser{}
	for _, opt := range opts {
		opt(p)
	}

	doc := &Document{}
	var candidates []tree.Node
	for _, child := range root.Children() {
		switch child.Tag() {
		case "variables":
			vars, err := parseVariables(child)
			if err != nil {
				return nil, err
			}
			doc.Variables = append(doc.Variables, vars...)
		case "block":
			if p.isEntry(child) {
				candidates = append(candidates, child)
			}
		}
	}

	switch len(candidates) {
	case 0:
		return nil, malformed("no entry block")
	case 1:
	default:
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = attr(c, "id")
		}
		return nil, malformed("%d entry blocks %q, want exactly one", len(candidates), ids)
	}

	entry, err := p.parseBlock(candidates[0])
	if err != nil {
		return nil, err
	}
	doc.Entry = entry
	doc.Warnings = p.warnings
	return doc, nil
}

// ParseBlock parses a block element and its next chain.
func ParseBlock(node tree.Node) (*Block, error) {
	return (&parser{}).parseBlock(node)
}

// ParseMember parses a value, statement or field element.
func ParseMember(node tree.Node) (Member, error) {
	return (&parser{}).parseMember(node)
}

func (p *parser) isEntry(node tree.Node) bool {
	if len(p.entryTypes) == 0 {
		return true
	}
	return p.entryTypes[attr(node, "type")]
}

func (p *parser) warn(b *Block, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{
		BlockID: b.ID,
		Opcode:  b.Opcode,
		Message: fmt.Sprintf(format, args...),
	})
}

// parseBlock walks the next chain iteratively so long scripts do not
// grow the Go stack; only slot nesting recurses.
func (p *parser) parseBlock(node tree.Node) (*Block, error) {
	var head, tail *Block
	for node != nil {
		b, next, err := p.parseOne(node)
		if err != nil {
			return nil, err
		}
		if head == nil {
			head = b
		} else {
			tail.Next = b
		}
		tail = b
		node = next
	}
	return head, nil
}

func (p *parser) parseOne(node tree.Node) (*Block, tree.Node, error) {
	if node.Tag() != "block" {
		return nil, nil, malformed("expected <block>, found <%s>", node.Tag())
	}
	b := &Block{
		Opcode: attr(node, "type"),
		ID:     attr(node, "id"),
	}
	if b.Opcode == "" {
		return nil, nil, malformed("block %q has no type", b.ID)
	}

	var next tree.Node
	seenNext := false
	slots := make(map[string]MemberKind)
	for _, child := range node.Children() {
		switch tag := child.Tag(); {
		case tag == "value" || tag == "statement" || tag == "field":
			m, err := p.parseMember(child)
			if err != nil {
				return nil, nil, fmt.Errorf("block %q (%s): %w", b.ID, b.Opcode, err)
			}
			if prev, dup := slots[m.SlotName()]; dup {
				p.warn(b, "duplicate slot %q (%s replaces %s)", m.SlotName(), m.Kind(), prev)
			}
			slots[m.SlotName()] = m.Kind()
			b.Members = append(b.Members, m)
		case tag == "next":
			if seenNext {
				return nil, nil, malformed("block %q has more than one <next>", b.ID)
			}
			seenNext = true
			next = firstChild(child, "block")
			if next == nil {
				return nil, nil, malformed("<next> of block %q has no <block>", b.ID)
			}
		case ignoredBlockChildren[tag]:
		default:
			return nil, nil, malformed("unexpected <%s> in block %q", tag, b.ID)
		}
	}
	return b, next, nil
}

func (p *parser) parseMember(node tree.Node) (Member, error) {
	name, ok := node.Attr("name")
	if !ok || name == "" {
		return nil, malformed("<%s> has no name", node.Tag())
	}

	switch node.Tag() {
	case "value":
		return p.parseValue(node, name)
	case "statement":
		child := firstChild(node, "block")
		if child == nil {
			return nil, malformed("statement %q has no <block>", name)
		}
		b, err := p.parseBlock(child)
		if err != nil {
			return nil, fmt.Errorf("statement %q: %w", name, err)
		}
		return &Statement{Name: name, Block: b}, nil
	case "field":
		f := parseField(node)
		return &f, nil
	default:
		return nil, malformed("unexpected member <%s>", node.Tag())
	}
}

// parseValue prefers a connected block and falls back to the shadow.
func (p *parser) parseValue(node tree.Node, name string) (*Value, error) {
	var blockErr error
	if child := firstChild(node, "block"); child != nil {
		b, err := p.parseBlock(child)
		if err == nil {
			return BlockValue(name, b), nil
		}
		blockErr = err
	}

	if child := firstChild(node, "shadow"); child != nil {
		s, err := parseShadow(child)
		if err == nil {
			if blockErr != nil {
				p.warnings = append(p.warnings, Warning{
					BlockID: s.ID,
					Opcode:  s.Type,
					Message: fmt.Sprintf("value %q: block dropped in favour of shadow: %v", name, blockErr),
				})
			}
			return ShadowValue(name, s), nil
		}
		if blockErr == nil {
			blockErr = err
		}
	}

	if blockErr != nil {
		return nil, fmt.Errorf("value %q: %w", name, blockErr)
	}
	return nil, malformed("value %q has neither block nor shadow", name)
}

func parseShadow(node tree.Node) (*Shadow, error) {
	child := firstChild(node, "field")
	if child == nil {
		return nil, malformed("shadow %q has no <field>", attr(node, "id"))
	}
	return &Shadow{
		Type:  attr(node, "type"),
		ID:    attr(node, "id"),
		Field: parseField(child),
	}, nil
}

func parseField(node tree.Node) Field {
	return Field{
		Name:         attr(node, "name"),
		ID:           attr(node, "id"),
		Value:        node.Text(),
		VariableType: attr(node, "variabletype"),
	}
}

func parseVariables(node tree.Node) ([]Variable, error) {
	var vars []Variable
	for _, child := range node.Children() {
		if child.Tag() != "variable" {
			continue
		}
		name := attr(child, "name")
		if name == "" {
			name = strings.TrimSpace(child.Text())
		}
		if name == "" {
			return nil, malformed("variable %q has no name", attr(child, "id"))
		}
		vars = append(vars, Variable{
			Name:    name,
			Type:    attr(child, "type"),
			ID:      attr(child, "id"),
			IsLocal: attr(child, "islocal") == "true",
			IsCloud: attr(child, "iscloud") == "true",
		})
	}
	return vars, nil
}

func attr(node tree.Node, name string) string {
	v, _ := node.Attr(name)
	return v
}

func firstChild(node tree.Node, tag string) tree.Node {
	for _, c := range node.Children() {
		if c.Tag() == tag {
			return c
		}
	}
	return nil
}
