package sandbox

import (
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"gamesmith/studio/internal/project"
)

const (
	scriptClassic = "classic"
	scriptModule  = "module"
)

// docScript is one executable script from the entry document, in document
// order. Either src or code is set; externalURL marks scripts the headless
// run cannot load.
type docScript struct {
	kind        string
	src         string
	code        string
	externalURL string
}

type entryDocument struct {
	scripts   []docScript
	importMap map[string]string
}

// parseEntry collects the entry document's scripts and authored import map.
// Non-executable script types (templates, shader text) are ignored.
func parseEntry(entry string) entryDocument {
	doc := entryDocument{importMap: make(map[string]string)}

	root, err := html.Parse(strings.NewReader(entry))
	if err != nil {
		return doc
	}

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			doc.addScript(n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(root)
	return doc
}

func (d *entryDocument) addScript(n *html.Node) {
	scriptType := ""
	src := ""
	for _, attr := range n.Attr {
		switch attr.Key {
		case "type":
			scriptType = strings.ToLower(strings.TrimSpace(attr.Val))
		case "src":
			src = strings.TrimSpace(attr.Val)
		}
	}

	var text strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			text.WriteString(child.Data)
		}
	}

	switch scriptType {
	case "importmap":
		var payload struct {
			Imports map[string]string `json:"imports"`
		}
		if err := json.Unmarshal([]byte(text.String()), &payload); err == nil {
			for spec, target := range payload.Imports {
				d.importMap[spec] = target
			}
		}
		return
	case "", "text/javascript", "application/javascript":
		d.append(scriptClassic, src, text.String())
	case "module":
		d.append(scriptModule, src, text.String())
	}
}

func (d *entryDocument) append(kind, src, code string) {
	script := docScript{kind: kind, code: code}
	if src != "" {
		if isExternalURL(src) {
			script.externalURL = src
		} else {
			script.src = project.NormalizePath(src)
			script.code = ""
		}
	}
	d.scripts = append(d.scripts, script)
}

func isExternalURL(ref string) bool {
	if strings.HasPrefix(ref, "//") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return true
	}
	return u.Scheme != ""
}
