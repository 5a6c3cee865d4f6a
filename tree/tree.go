// Package tree holds the generic attributed tree that block documents are
// decoded into before the ast package turns them into executable blocks.
//
// Two encodings are understood: the XML export written by Blockly/Scratch
// editors and a YAML rendering of the same tree (tag, attrs, text, children).
package tree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node is a read-only view of one element of an attributed tree.
type Node interface {
	Tag() string
	Attr(name string) (string, bool)
	Children() []Node
	Text() string
}

// Element is the concrete Node produced by the decoders in this package.
type Element struct {
	Name  string            `yaml:"tag"`
	Attrs map[string]string `yaml:"attrs,omitempty"`
	Body  string            `yaml:"text,omitempty"`
	Kids  []*Element        `yaml:"children,omitempty"`
}

// ErrEmptyDocument is returned when the input holds no root element.
var ErrEmptyDocument = errors.New("document has no root element")

// NewElement creates an element with the given tag and attribute pairs
// (name, value, name, value, ...).
func NewElement(tag string, attrs ...string) *Element {
	e := &Element{Name: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		e.SetAttr(attrs[i], attrs[i+1])
	}
	return e
}

// Tag returns the element name.
func (e *Element) Tag() string { return e.Name }

// Attr returns the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Text returns the element's character data as written. Whitespace-only
// data, such as the indentation between child elements, reads as empty.
func (e *Element) Text() string {
	if strings.TrimSpace(e.Body) == "" {
		return ""
	}
	return e.Body
}

// Children returns the child elements in document order.
func (e *Element) Children() []Node {
	nodes := make([]Node, len(e.Kids))
	for i, k := range e.Kids {
		nodes[i] = k
	}
	return nodes
}

// SetAttr sets an attribute, allocating the map on first use.
func (e *Element) SetAttr(name, value string) *Element {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[name] = value
	return e
}

// SetText sets the element's character data.
func (e *Element) SetText(text string) *Element {
	e.Body = text
	return e
}

// Append adds children and returns the receiver so documents can be built inline.
func (e *Element) Append(children ...*Element) *Element {
	e.Kids = append(e.Kids, children...)
	return e
}

// ParseXML decodes an XML document. Namespaces are dropped from tag and
// attribute names; Blockly exports put everything in one default namespace.
func ParseXML(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	var stack []*Element
	var root *Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name.Local}
			for _, a := range t.Attr {
				el.SetAttr(a.Name.Local, a.Value)
			}
			switch {
			case len(stack) > 0:
				parent := stack[len(stack)-1]
				parent.Kids = append(parent.Kids, el)
			case root == nil:
				root = el
			default:
				return nil, fmt.Errorf("xml: unexpected <%s> after the root element", el.Name)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if strings.TrimSpace(top.Body) == "" {
					top.Body = ""
				}
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Body += string(t)
			}
		}
	}

	if root == nil {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

// ParseYAML decodes the YAML rendering of an attributed tree.
func ParseYAML(r io.Reader) (*Element, error) {
	var root Element
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyDocument
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if root.Name == "" {
		return nil, fmt.Errorf("yaml: root element has no tag")
	}
	return &root, nil
}

// MarshalYAML renders the tree in the form ParseYAML reads.
func MarshalYAML(e *Element) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads a document from disk, choosing the decoder by file extension.
// Files ending in .yaml or .yml are read as YAML, everything else as XML.
func Load(path string) (*Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var root *Element
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		root, err = ParseYAML(bytes.NewReader(data))
	default:
		root, err = ParseXML(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return root, nil
}
