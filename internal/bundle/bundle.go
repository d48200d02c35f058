// Package bundle turns a workspace file set into a single self-contained
// preview document. References between project files are resolved against
// per-pass asset URLs, the console bridge and GameKit runtime are injected
// ahead of any game code, and module projects get their import map extended
// so relative and bare specifiers keep working once files are served from
// pass URLs instead of their authored paths.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"gamesmith/studio/internal/project"
)

const (
	StrategyInline    = "inline"
	StrategyImportMap = "importmap"
)

const (
	idConsoleBridge = "gamesmith-console-bridge"
	idEnv           = "gamesmith-env"
	idRuntime       = "gamesmith-runtime"
)

// Warning records a reference the bundler could not resolve to a project
// file. The original attribute value is left in place.
type Warning struct {
	Path    string `json:"path"`
	Element string `json:"element"`
	Attr    string `json:"attr"`
}

// Artifact is the result of one bundling pass.
type Artifact struct {
	Document     string
	Assets       *AssetSet
	Warnings     []Warning
	Strategy     string
	EntryMissing bool
}

type builder struct {
	files    map[string]string
	set      *AssetSet
	strategy string
	warnings []Warning
}

// Build bundles a file set for preview. It never fails outright: a missing
// or unparseable entry document yields a placeholder artifact, and broken
// references degrade to warnings. The returned asset set is live in the
// registry until the caller releases it.
func Build(files map[string]string, registry *Registry) *Artifact {
	norm := make(map[string]string, len(files))
	for p, content := range files {
		norm[project.NormalizePath(p)] = content
	}

	entry, ok := norm[project.EntryPoint]
	if !ok {
		return &Artifact{
			Document:     PlaceholderDocument("This project has no index.html yet. Ask for one to get started."),
			Assets:       registry.NewSet(),
			EntryMissing: true,
		}
	}

	doc, err := html.Parse(strings.NewReader(entry))
	if err != nil {
		return &Artifact{
			Document: PlaceholderDocument("The entry document could not be parsed."),
			Assets:   registry.NewSet(),
		}
	}

	removeByID(doc, idConsoleBridge, idEnv, idRuntime)

	elements := collectElements(doc)

	b := &builder{
		files:    norm,
		set:      registry.NewSet(),
		strategy: detectStrategy(elements),
	}
	for p, content := range norm {
		if p == project.EntryPoint {
			continue
		}
		b.set.put(p, []byte(content), mimeForPath(p))
	}

	var authoredMap *html.Node
	for _, n := range elements {
		if n.DataAtom == atom.Script && scriptType(n) == "importmap" {
			if authoredMap == nil {
				authoredMap = n
			}
			continue
		}
		b.rewriteElement(n)
	}

	if head := findElement(doc, atom.Head); head != nil {
		runtime := b.inject(head)
		if b.strategy == StrategyImportMap {
			b.applyImportMap(head, authoredMap, runtime)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		b.set.Release()
		return &Artifact{
			Document: PlaceholderDocument("The preview document could not be assembled."),
			Assets:   registry.NewSet(),
		}
	}

	return &Artifact{
		Document: buf.String(),
		Assets:   b.set,
		Warnings: b.warnings,
		Strategy: b.strategy,
	}
}

// detectStrategy picks module semantics as soon as the document declares a
// module script or an import map. Everything else is handled by inlining.
func detectStrategy(elements []*html.Node) string {
	for _, n := range elements {
		if n.DataAtom != atom.Script {
			continue
		}
		switch scriptType(n) {
		case "module", "importmap":
			return StrategyImportMap
		}
	}
	return StrategyInline
}

func (b *builder) rewriteElement(n *html.Node) {
	switch n.DataAtom {
	case atom.Script:
		b.rewriteScript(n)
	case atom.Link:
		b.rewriteLink(n)
	case atom.Img, atom.Audio, atom.Video, atom.Source, atom.Track:
		b.rewriteAttr(n, "src")
	}
}

func (b *builder) rewriteScript(n *html.Node) {
	src := getAttr(n, "src")
	if src == "" || !isProjectRef(src) {
		return
	}
	p, ok := b.lookup(src)
	if !ok {
		b.warn(src, n.Data, "src")
		return
	}
	if b.strategy == StrategyInline && isClassicScript(n) {
		setInlineScript(n, b.files[p])
		return
	}
	setAttr(n, "src", b.set.URL(p))
}

func (b *builder) rewriteLink(n *html.Node) {
	href := getAttr(n, "href")
	if href == "" || !isProjectRef(href) {
		return
	}
	p, ok := b.lookup(href)
	if !ok {
		b.warn(href, n.Data, "href")
		return
	}
	rel := strings.ToLower(getAttr(n, "rel"))
	if b.strategy == StrategyInline && strings.Contains(rel, "stylesheet") {
		replaceWithStyle(n, b.files[p])
		return
	}
	setAttr(n, "href", b.set.URL(p))
}

func (b *builder) rewriteAttr(n *html.Node, attr string) {
	ref := getAttr(n, attr)
	if ref == "" || !isProjectRef(ref) {
		return
	}
	p, ok := b.lookup(ref)
	if !ok {
		b.warn(ref, n.Data, attr)
		return
	}
	setAttr(n, attr, b.set.URL(p))
}

// lookup maps a reference to a normalized project path.
func (b *builder) lookup(ref string) (string, bool) {
	p := project.NormalizePath(stripRef(ref))
	_, ok := b.files[p]
	return p, ok
}

func (b *builder) warn(ref, element, attr string) {
	b.warnings = append(b.warnings, Warning{
		Path:    project.NormalizePath(stripRef(ref)),
		Element: element,
		Attr:    attr,
	})
}

// inject places the console bridge, the asset environment, and the GameKit
// runtime at the front of head, in that order, so they run before any game
// code regardless of where the document loads its own scripts. Returns the
// runtime node as the anchor for import map placement.
func (b *builder) inject(head *html.Node) *html.Node {
	bridge := inlineScriptNode(idConsoleBridge, interceptorJS)
	env := inlineScriptNode(idEnv, b.envScript())
	runtime := inlineScriptNode(idRuntime, gamekitJS)

	head.InsertBefore(runtime, head.FirstChild)
	head.InsertBefore(env, runtime)
	head.InsertBefore(bridge, env)
	return runtime
}

func (b *builder) envScript() string {
	table := make(map[string]string, len(b.files))
	for p := range b.files {
		if p == project.EntryPoint {
			continue
		}
		table[p] = b.set.URL(p)
	}
	payload, _ := json.Marshal(table)
	return "window.__GAMESMITH_ASSETS__ = " + string(payload) + ";"
}

type importMapDoc struct {
	Imports map[string]string `json:"imports"`
	Scopes  json.RawMessage   `json:"scopes,omitempty"`
}

// applyImportMap extends the authored import map, or creates one right after
// the injected runtime, so it still precedes every module script. Each
// project script gets its bare, relative, and root-absolute spellings mapped
// to its pass URL; authored entries for other specifiers are preserved.
func (b *builder) applyImportMap(head, authored, runtime *html.Node) {
	var doc importMapDoc
	if authored != nil {
		if err := json.Unmarshal([]byte(textContent(authored)), &doc); err != nil {
			doc = importMapDoc{}
		}
	}
	if doc.Imports == nil {
		doc.Imports = make(map[string]string)
	}

	for p := range b.files {
		if p == project.EntryPoint || !isScriptPath(p) {
			continue
		}
		target := b.set.URL(p)
		doc.Imports[p] = target
		doc.Imports["./"+p] = target
		doc.Imports["/"+p] = target
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return
	}

	if authored != nil {
		setTextContent(authored, string(payload))
		return
	}
	node := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "type", Val: "importmap"}},
	}
	setTextContent(node, string(payload))
	head.InsertBefore(node, runtime.NextSibling)
}

func isScriptPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs":
		return true
	}
	return false
}

// isProjectRef reports whether a reference should resolve against project
// files. External URLs, data URIs, fragments, and already-bundled pass URLs
// pass through byte for byte.
func isProjectRef(ref string) bool {
	if strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return false
	}
	if strings.HasPrefix(ref, AssetURLPrefix) {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == ""
}

func stripRef(ref string) string {
	if idx := strings.IndexAny(ref, "?#"); idx >= 0 {
		ref = ref[:idx]
	}
	return ref
}

func scriptType(n *html.Node) string {
	return strings.ToLower(strings.TrimSpace(getAttr(n, "type")))
}

func isClassicScript(n *html.Node) bool {
	switch scriptType(n) {
	case "", "text/javascript", "application/javascript":
		return true
	}
	return false
}

func isInjectedID(id string, ids []string) bool {
	for _, candidate := range ids {
		if id == candidate {
			return true
		}
	}
	return false
}

func removeByID(doc *html.Node, ids ...string) {
	var doomed []*html.Node
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && isInjectedID(getAttr(n, "id"), ids) {
			doomed = append(doomed, n)
		}
	})
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func collectElements(doc *html.Node) []*html.Node {
	var elements []*html.Node
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode {
			elements = append(elements, n)
		}
	})
	return elements
}

func findElement(doc *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.DataAtom == a {
			found = n
		}
	})
	return found
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
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

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// escapeInline keeps embedded code from terminating its host element early.
func escapeInline(content, tag string) string {
	return strings.ReplaceAll(content, "</"+tag, `<\/`+tag)
}

func setInlineScript(n *html.Node, code string) {
	removeAttr(n, "src")
	setTextContent(n, escapeInline(code, "script"))
}

func replaceWithStyle(link *html.Node, css string) {
	style := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Style,
		Data:     "style",
	}
	if media := getAttr(link, "media"); media != "" {
		style.Attr = append(style.Attr, html.Attribute{Key: "media", Val: media})
	}
	setTextContent(style, escapeInline(css, "style"))
	link.Parent.InsertBefore(style, link)
	link.Parent.RemoveChild(link)
}

func inlineScriptNode(id, code string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "id", Val: id}},
	}
	setTextContent(n, escapeInline(code, "script"))
	return n
}

func setTextContent(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
	}
	return sb.String()
}

// PlaceholderDocument renders the stand-in page shown when there is nothing
// bundleable to preview.
func PlaceholderDocument(message string) string {
	return fmt.Sprintf(placeholderHTML, html.EscapeString(message))
}
