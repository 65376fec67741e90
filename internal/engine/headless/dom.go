package headless

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// rawText elements hold their content as a single text node.
var rawText = map[string]bool{
	"style":    true,
	"script":   true,
	"textarea": true,
	"title":    true,
}

func parseHTML(src string) (*html.Node, error) {
	return html.Parse(strings.NewReader(src))
}

// document exposes one parsed page to a script runtime. Element wrappers are
// cached so the same node always maps to the same object.
type document struct {
	rt       *goja.Runtime
	root     *html.Node
	url      string
	onChange func()

	objects map[*html.Node]*goja.Object
	nodes   map[*goja.Object]*html.Node
}

func newDocument(rt *goja.Runtime, root *html.Node, url string, onChange func()) *document {
	if onChange == nil {
		onChange = func() {}
	}
	return &document{
		rt:       rt,
		root:     root,
		url:      url,
		onChange: onChange,
		objects:  make(map[*html.Node]*goja.Object),
		nodes:    make(map[*goja.Object]*html.Node),
	}
}

// install sets the document and location globals.
func (d *document) install() error {
	doc := d.rt.NewObject()
	d.bindQueries(doc, d.root)

	_ = doc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		return d.wrap(d.byID(call.Argument(0).String()))
	})
	_ = doc.Set("createElement", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		return d.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	})
	_ = doc.Set("createTextNode", func(call goja.FunctionCall) goja.Value {
		return d.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	d.accessor(doc, "documentElement", func() goja.Value { return d.wrap(d.find("//html")) }, nil)
	d.accessor(doc, "head", func() goja.Value { return d.wrap(d.find("//head")) }, nil)
	d.accessor(doc, "body", func() goja.Value { return d.wrap(d.find("//body")) }, nil)
	d.accessor(doc, "title", func() goja.Value {
		if n := d.find("//title"); n != nil {
			return d.rt.ToValue(htmlquery.InnerText(n))
		}
		return d.rt.ToValue("")
	}, nil)

	location := d.rt.NewObject()
	_ = location.Set("href", d.url)

	if err := d.rt.Set("document", doc); err != nil {
		return err
	}
	return d.rt.Set("location", location)
}

func (d *document) find(expr string) *html.Node {
	n, err := htmlquery.Query(d.root, expr)
	if err != nil {
		return nil
	}
	return n
}

func (d *document) findAll(expr string) []*html.Node {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil
	}
	return nodes
}

func (d *document) byID(id string) *html.Node {
	switch {
	case id == "":
		return nil
	case !strings.Contains(id, `"`):
		return d.find(`//*[@id="` + id + `"]`)
	case !strings.Contains(id, `'`):
		return d.find(`//*[@id='` + id + `']`)
	}
	return nil
}

func (d *document) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := d.rt.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	setter := d.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		if set != nil {
			set(call.Argument(0))
		}
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (d *document) bindQueries(obj *goja.Object, scope *html.Node) {
	_ = obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		sel := goquery.NewDocumentFromNode(scope).Find(call.Argument(0).String())
		if sel.Length() == 0 {
			return goja.Null()
		}
		return d.wrap(sel.Get(0))
	})
	_ = obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		sel := goquery.NewDocumentFromNode(scope).Find(call.Argument(0).String())
		out := make([]interface{}, 0, sel.Length())
		for _, n := range sel.Nodes {
			out = append(out, d.wrap(n))
		}
		return d.rt.NewArray(out...)
	})
}

func (d *document) unwrap(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return d.nodes[obj]
}

func (d *document) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := d.objects[n]; ok {
		return obj
	}

	obj := d.rt.NewObject()
	d.objects[n] = obj
	d.nodes[obj] = n

	_ = obj.Set("nodeType", int(n.Type))
	if n.Type == html.ElementNode {
		_ = obj.Set("tagName", strings.ToUpper(n.Data))
		_ = obj.Set("nodeName", strings.ToUpper(n.Data))
	}
	d.bindQueries(obj, n)

	_ = obj.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		child := d.unwrap(call.Argument(0))
		if child == nil || child == n || isAncestor(child, n) {
			panic(d.rt.NewTypeError("appendChild: invalid node"))
		}
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		n.AppendChild(child)
		d.onChange()
		return call.Argument(0)
	})
	_ = obj.Set("removeChild", func(call goja.FunctionCall) goja.Value {
		child := d.unwrap(call.Argument(0))
		if child == nil || child.Parent != n {
			panic(d.rt.NewTypeError("removeChild: not a child"))
		}
		n.RemoveChild(child)
		d.onChange()
		return call.Argument(0)
	})
	_ = obj.Set("remove", func(goja.FunctionCall) goja.Value {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
			d.onChange()
		}
		return goja.Undefined()
	})
	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := attr(n, call.Argument(0).String()); ok {
			return d.rt.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		setAttr(n, call.Argument(0).String(), call.Argument(1).String())
		d.onChange()
		return goja.Undefined()
	})
	_ = obj.Set("addEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })

	d.accessor(obj, "id", func() goja.Value {
		v, _ := attr(n, "id")
		return d.rt.ToValue(v)
	}, func(v goja.Value) {
		setAttr(n, "id", v.String())
	})
	d.accessor(obj, "textContent", func() goja.Value {
		return d.rt.ToValue(textContent(n))
	}, func(v goja.Value) {
		replaceChildren(n, &html.Node{Type: html.TextNode, Data: v.String()})
		d.onChange()
	})
	d.accessor(obj, "innerHTML", func() goja.Value {
		return d.rt.ToValue(innerHTML(n))
	}, func(v goja.Value) {
		d.setInnerHTML(n, v.String())
		d.onChange()
	})
	d.accessor(obj, "parentNode", func() goja.Value { return d.wrap(n.Parent) }, nil)
	return obj
}

func (d *document) setInnerHTML(n *html.Node, src string) {
	if rawText[n.Data] || n.Type != html.ElementNode {
		replaceChildren(n, &html.Node{Type: html.TextNode, Data: src})
		return
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), n)
	if err != nil {
		replaceChildren(n, &html.Node{Type: html.TextNode, Data: src})
		return
	}
	replaceChildren(n, nodes...)
}

func replaceChildren(n *html.Node, children ...*html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	for _, c := range children {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}

func isAncestor(candidate, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == candidate {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func textContent(n *html.Node) string {
	return goquery.NewDocumentFromNode(n).Text()
}

func innerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && rawText[n.Data] {
			b.WriteString(c.Data)
			continue
		}
		if err := html.Render(&b, c); err != nil {
			break
		}
	}
	return b.String()
}

// visibleText returns the whitespace-collapsed text of the body, without
// scripts and styles.
func visibleText(root *html.Node) string {
	body := goquery.NewDocumentFromNode(root).Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}
