// Package transform rewrites upstream CMS markup into the restricted node
// schema the archive host accepts. The upstream editor emits deeply nested
// <div> forests; the host only takes a flat subset of HTML.
package transform

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Normalize applies the full rewrite to a body element, in place. The
// transform is deterministic and idempotent: running it on its own output
// changes nothing.
//
// Steps, in order:
//  1. drop a leading hidden <h4> header
//  2. trim leading/trailing whitespace and <br> runs, through empty wrappers
//  3. separate adjacent <div> blocks with <br>
//  4. unwrap every <div>
//  5. wrap naked <img> in <figure>
//  6. hoist the leading image to the front
func Normalize(body *html.Node) {
	if body == nil {
		return
	}
	stripHiddenHeader(body)
	trimEdges(body)
	insertDivSeparators(body)
	unwrapDivs(body)
	wrapImages(body)
	hoistLeadingImage(body)
}

func isElem(n *html.Node, name string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == name
}

func isWhitespaceText(n *html.Node) bool {
	return n != nil && n.Type == html.TextNode && strings.TrimSpace(n.Data) == ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstContentChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !isWhitespaceText(c) {
			return c
		}
	}
	return nil
}

// stripHiddenHeader removes the CMS's invisible <h4 style="display: none">
// title duplicate when it leads the body.
func stripHiddenHeader(body *html.Node) {
	first := firstContentChild(body)
	if !isElem(first, "h4") {
		return
	}
	style := strings.ReplaceAll(attr(first, "style"), " ", "")
	if strings.Contains(style, "display:none") {
		body.RemoveChild(first)
	}
}

// emptyWrapperTags are containers the trim recurses into; they detach once
// childless.
var emptyWrapperTags = map[string]bool{"div": true, "span": true, "p": true}

// trimEdges removes whitespace text and <br> from both ends of the child
// sequence. Wrapper elements at an edge are trimmed recursively and removed
// entirely when nothing remains inside.
func trimEdges(n *html.Node) {
	trimEdge(n, func(p *html.Node) *html.Node { return p.FirstChild })
	trimEdge(n, func(p *html.Node) *html.Node { return p.LastChild })
}

func trimEdge(n *html.Node, edge func(*html.Node) *html.Node) {
	for {
		c := edge(n)
		if c == nil {
			return
		}
		switch {
		case isWhitespaceText(c) || isElem(c, "br"):
			n.RemoveChild(c)
		case c.Type == html.ElementNode && emptyWrapperTags[c.Data]:
			trimEdge(c, edge)
			if c.FirstChild == nil {
				n.RemoveChild(c)
				continue
			}
			return
		default:
			return
		}
	}
}

// endsWithBreak reports whether the element's visible end is a line break.
func endsWithBreak(n *html.Node) bool {
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if isWhitespaceText(c) {
			continue
		}
		return isElem(c, "br")
	}
	return false
}

// startsWithBreak reports whether the element's visible start is a line break.
func startsWithBreak(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isWhitespaceText(c) {
			continue
		}
		return isElem(c, "br")
	}
	return false
}

// insertDivSeparators puts a <br> between adjacent <div> children so the
// block boundary survives the later unwrap. Boundaries that already break
// are left alone.
func insertDivSeparators(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			insertDivSeparators(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		next := c.NextSibling
		for next != nil && isWhitespaceText(next) {
			next = next.NextSibling
		}
		if !isElem(c, "div") || !isElem(next, "div") {
			continue
		}
		if endsWithBreak(c) || startsWithBreak(next) {
			continue
		}
		n.InsertBefore(&html.Node{
			Type:     html.ElementNode,
			Data:     "br",
			DataAtom: atom.Br,
		}, next)
	}
}

// unwrapDivs replaces every <div> with its children, depth-first.
func unwrapDivs(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			unwrapDivs(c)
		}
		if isElem(c, "div") {
			for gc := c.FirstChild; gc != nil; {
				gcNext := gc.NextSibling
				c.RemoveChild(gc)
				n.InsertBefore(gc, c)
				gc = gcNext
			}
			n.RemoveChild(c)
		}
		c = next
	}
}

// wrapImages puts every naked <img> inside <figure><figcaption/></figure>,
// the shape the archive host renders as a captioned image.
func wrapImages(n *html.Node) {
	var imgs []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if isElem(c, "img") && !isElem(c.Parent, "figure") {
				imgs = append(imgs, c)
				continue
			}
			collect(c)
		}
	}
	collect(n)

	for _, img := range imgs {
		parent := img.Parent
		figure := &html.Node{Type: html.ElementNode, Data: "figure", DataAtom: atom.Figure}
		parent.InsertBefore(figure, img)
		parent.RemoveChild(img)
		figure.AppendChild(img)
		figure.AppendChild(&html.Node{Type: html.ElementNode, Data: "figcaption", DataAtom: atom.Figcaption})
	}
}

// hoistLeadingImage moves the first image found on the leftmost child chain
// to be the root's first child, so the archive page leads with its banner.
func hoistLeadingImage(root *html.Node) {
	n := firstContentChild(root)
	for n != nil {
		if isElem(n, "figure") || isElem(n, "img") {
			if n.Parent == root && root.FirstChild == n {
				return
			}
			n.Parent.RemoveChild(n)
			if root.FirstChild != nil {
				root.InsertBefore(n, root.FirstChild)
			} else {
				root.AppendChild(n)
			}
			return
		}
		n = firstContentChild(n)
	}
}
