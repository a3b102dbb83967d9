package telegraph

import "encoding/json"

// Node is one element of a Telegraph page's content. A node is either bare
// text (Tag empty) or an element with an optional restricted attribute set
// and children. The wire form of a text node is a JSON string, so Node
// implements its own marshalling.
type Node struct {
	Text     string
	Tag      string
	Attrs    map[string]string
	Children []Node
}

// TextNode builds a bare text node.
func TextNode(text string) Node {
	return Node{Text: text}
}

// Elem builds an element node.
func Elem(tag string, children ...Node) Node {
	return Node{Tag: tag, Children: children}
}

type nodeElement struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

// MarshalJSON emits a string for text nodes and an object for elements.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Tag == "" {
		return json.Marshal(n.Text)
	}
	return json.Marshal(nodeElement{Tag: n.Tag, Attrs: n.Attrs, Children: n.Children})
}

// UnmarshalJSON accepts both wire forms.
func (n *Node) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*n = Node{Text: text}
		return nil
	}
	var elem nodeElement
	if err := json.Unmarshal(data, &elem); err != nil {
		return err
	}
	*n = Node{Tag: elem.Tag, Attrs: elem.Attrs, Children: elem.Children}
	return nil
}
