package steps

import (
	"bytes"
	"context"
	"os"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitepress/internal/pipeline"
)

// RewriteLinksStep adjusts relative links in HTML documents so references to
// source files point at their rendered counterparts (a.md -> a.html).
// Absolute URLs, fragments, and rooted paths are left alone.
type RewriteLinksStep struct {
	FromExt string
	ToExt   string
}

func (*RewriteLinksStep) Name() string                  { return NameRewriteLinks }
func (*RewriteLinksStep) Bind(*pipeline.Pipeline) error { return nil }

func (s *RewriteLinksStep) Run(_ context.Context, source string, outputs []string) (*pipeline.Result, error) {
	src, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	s.rewriteNode(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, err
	}
	if err := writeOutputs(outputs, buf.Bytes()); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *RewriteLinksStep) rewriteNode(n *html.Node) {
	if n.Type == html.ElementNode && n.Data == "a" {
		for i, attr := range n.Attr {
			if attr.Key == "href" {
				n.Attr[i].Val = s.rewriteRef(attr.Val)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.rewriteNode(c)
	}
}

func (s *RewriteLinksStep) rewriteRef(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") ||
		strings.Contains(ref, "://") || strings.HasPrefix(ref, "mailto:") {
		return ref
	}
	path, fragment, hasFragment := strings.Cut(ref, "#")
	if !strings.HasSuffix(path, s.FromExt) {
		return ref
	}
	path = strings.TrimSuffix(path, s.FromExt) + s.ToExt
	if hasFragment {
		return path + "#" + fragment
	}
	return path
}
