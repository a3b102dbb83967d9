package transform

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/redive-tools/newswatch/pkg/telegraph"
)

// allowedTags is the archive host's node schema. Anything else is either
// renamed (headings) or unwrapped into its children.
var allowedTags = map[string]bool{
	"a": true, "aside": true, "b": true, "blockquote": true, "br": true,
	"code": true, "em": true, "figcaption": true, "figure": true,
	"h3": true, "h4": true, "hr": true, "i": true, "iframe": true,
	"img": true, "li": true, "ol": true, "p": true, "pre": true,
	"s": true, "strong": true, "u": true, "ul": true, "video": true,
}

// renamedTags maps tags the host rejects onto their closest accepted form.
var renamedTags = map[string]string{
	"h1": "h3", "h2": "h3", "h5": "h4", "h6": "h4", "strike": "s",
}

// allowedAttrs is the only attribute set the host keeps.
var allowedAttrs = map[string]bool{"href": true, "src": true}

// ToNodes converts a normalized body element's children into archive-host
// nodes. Empty text runs between elements are dropped; inner whitespace is
// preserved.
func ToNodes(body *html.Node) []telegraph.Node {
	if body == nil {
		return nil
	}
	return convertChildren(body)
}

func convertChildren(n *html.Node) []telegraph.Node {
	var out []telegraph.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, convertNode(c)...)
	}
	return out
}

func convertNode(n *html.Node) []telegraph.Node {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return []telegraph.Node{telegraph.TextNode(n.Data)}
	case html.ElementNode:
		tag := n.Data
		if renamed, ok := renamedTags[tag]; ok {
			tag = renamed
		}
		if !allowedTags[tag] {
			// Unknown wrapper: keep the content, lose the element.
			return convertChildren(n)
		}
		node := telegraph.Node{Tag: tag, Children: convertChildren(n)}
		for _, a := range n.Attr {
			if allowedAttrs[a.Key] {
				if node.Attrs == nil {
					node.Attrs = make(map[string]string)
				}
				node.Attrs[a.Key] = a.Val
			}
		}
		return []telegraph.Node{node}
	default:
		return nil
	}
}

// AppendExtras serializes source-specific fields as a fenced code block at
// the end of the page, keeping the raw upstream fields traceable from the
// archive copy.
func AppendExtras(nodes []telegraph.Node, extra map[string]string) []telegraph.Node {
	if len(extra) == 0 {
		return nodes
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("```\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, extra[k])
	}
	sb.WriteString("```")

	return append(nodes, telegraph.Node{
		Tag:      "pre",
		Children: []telegraph.Node{telegraph.TextNode(sb.String())},
	})
}
