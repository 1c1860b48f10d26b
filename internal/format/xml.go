package format

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/docingest/internal/document"
	"github.com/JonMunkholm/docingest/internal/normalize"
)

// recordElements are the child names that mark a root element as a
// container of records.
var recordElements = map[string]bool{
	"doc":    true,
	"item":   true,
	"record": true,
}

// ParseXML parses an XML document. When the root element has children
// named doc, item or record, each of those children is one document and
// the root's other children are ignored. Otherwise the root itself is the
// single document.
//
// Attributes become fields suffixed with normalize.AttributeSuffix. Leaf
// element text is trimmed and typed by its content; empty leaves without
// attributes produce no field. Text mixed with child elements is dropped.
func ParseXML(r io.Reader) ([]document.Document, error) {
	root, err := readXMLTree(xml.NewDecoder(newReader(r)))
	if err != nil {
		return nil, err
	}

	var records []*xmlElement
	for _, c := range root.children {
		if recordElements[c.name] {
			records = append(records, c)
		}
	}
	if len(records) == 0 {
		records = []*xmlElement{root}
	}

	docs := make([]document.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, normalize.Flatten(rec.members()))
	}
	return docs, nil
}

type xmlElement struct {
	name     string
	attrs    []xml.Attr
	children []*xmlElement
	text     strings.Builder
}

// readXMLTree reads the whole document and returns its single root.
func readXMLTree(dec *xml.Decoder) (*xmlElement, error) {
	var (
		root  *xmlElement
		stack []*xmlElement
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var se *xml.SyntaxError
			if errors.As(err, &se) {
				return nil, parseError(XML, se.Line, errors.New(se.Msg))
			}
			return nil, parseError(XML, inputLine(dec), err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &xmlElement{name: t.Name.Local, attrs: dataAttrs(t.Attr)}
			if len(stack) == 0 {
				if root != nil {
					return nil, parseError(XML, inputLine(dec), fmt.Errorf("multiple root elements: <%s> after <%s>", el.name, root.name))
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			} else if len(strings.TrimSpace(string(t))) > 0 {
				return nil, parseError(XML, inputLine(dec), errors.New("text outside root element"))
			}
		}
	}

	if root == nil {
		return nil, parseError(XML, 0, errors.New("no root element"))
	}
	return root, nil
}

func inputLine(dec *xml.Decoder) int {
	line, _ := dec.InputPos()
	return line
}

// dataAttrs drops namespace declarations.
func dataAttrs(attrs []xml.Attr) []xml.Attr {
	out := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// members returns the element's attributes and children as an object.
// The element's own text is not included.
func (e *xmlElement) members() normalize.Object {
	obj := make(normalize.Object, 0, len(e.attrs)+len(e.children))
	for _, a := range e.attrs {
		obj = append(obj, normalize.Member{
			Key:   a.Name.Local,
			Value: normalize.Literal(strings.TrimSpace(a.Value)),
			Role:  normalize.RoleAttribute,
		})
	}
	for _, c := range e.children {
		if n := c.node(); n != nil {
			obj = append(obj, normalize.Member{Key: c.name, Value: n})
		}
	}
	return obj
}

// node converts a nested element. It returns nil for an empty leaf
// without attributes.
func (e *xmlElement) node() normalize.Node {
	if len(e.children) > 0 {
		return e.members()
	}

	text := strings.TrimSpace(e.text.String())
	if len(e.attrs) == 0 {
		if text == "" {
			return nil
		}
		return normalize.Literal(text)
	}

	obj := e.members()
	if text != "" {
		obj = append(obj, normalize.Member{Value: normalize.Literal(text), Role: normalize.RoleText})
	}
	return obj
}
