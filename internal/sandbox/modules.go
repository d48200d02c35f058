package sandbox

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"gamesmith/studio/internal/project"
)

// The runtime has no native ES module loader, so module scripts are rewritten
// into plain functions: static imports become __import calls, exports become
// assignments onto __exports, and modules are evaluated depth first with
// memoized exports. Covers the static forms game code uses; anything the
// rewrite cannot express surfaces as a script error in the console.

const (
	treeOK = iota
	treeExternal
	treeUnresolved
)

type moduleSource struct {
	code  string
	specs []string
}

type linker struct {
	vm      *goja.Runtime
	files   map[string]string
	imports map[string]string
	sources map[string]moduleSource
	loaded  map[string]*goja.Object
	inline  int
}

func newLinker(vm *goja.Runtime, files, imports map[string]string) *linker {
	return &linker{
		vm:      vm,
		files:   files,
		imports: imports,
		sources: make(map[string]moduleSource),
		loaded:  make(map[string]*goja.Object),
	}
}

// entry registers a script as a module graph root and returns its key.
func (l *linker) entry(script docScript) string {
	if script.src != "" {
		return script.src
	}
	l.inline++
	key := fmt.Sprintf("inline:%d", l.inline)
	l.sources[key] = transformModule(script.code)
	return key
}

func (l *linker) source(key string) (moduleSource, bool) {
	if ms, ok := l.sources[key]; ok {
		return ms, true
	}
	content, ok := l.files[key]
	if !ok {
		return moduleSource{}, false
	}
	ms := transformModule(content)
	l.sources[key] = ms
	return ms, true
}

// resolve maps an import specifier to a project file. Relative and
// root-absolute specifiers resolve directly; bare specifiers go through the
// authored import map, where an external target means the whole tree is
// skipped headlessly.
func (l *linker) resolve(spec, fromKey string) (string, int) {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		base := "."
		if !strings.HasPrefix(fromKey, "inline:") {
			base = path.Dir(fromKey)
		}
		joined := path.Clean(path.Join(base, spec))
		if joined == ".." || strings.HasPrefix(joined, "../") {
			return spec, treeUnresolved
		}
		if _, ok := l.files[joined]; ok {
			return joined, treeOK
		}
		return spec, treeUnresolved
	}
	if strings.HasPrefix(spec, "/") {
		p := strings.TrimPrefix(spec, "/")
		if _, ok := l.files[p]; ok {
			return p, treeOK
		}
		return spec, treeUnresolved
	}

	target, ok := l.imports[spec]
	if !ok {
		if _, ok := l.files[spec]; ok {
			return spec, treeOK
		}
		return spec, treeUnresolved
	}
	if isExternalURL(target) {
		return spec, treeExternal
	}
	p := project.NormalizePath(target)
	if _, ok := l.files[p]; ok {
		return p, treeOK
	}
	return spec, treeUnresolved
}

// scan walks the static import graph from a root before anything executes,
// so a tree that cannot run headlessly is skipped without side effects.
func (l *linker) scan(entry string) (int, string) {
	visited := make(map[string]bool)
	queue := []string{entry}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if visited[key] {
			continue
		}
		visited[key] = true

		ms, ok := l.source(key)
		if !ok {
			return treeUnresolved, key
		}
		for _, spec := range ms.specs {
			resolved, verdict := l.resolve(spec, key)
			if verdict != treeOK {
				return verdict, spec
			}
			if !visited[resolved] {
				queue = append(queue, resolved)
			}
		}
	}
	return treeOK, ""
}

// load evaluates a module, memoized by key. The exports object is cached
// before the body runs so import cycles see partial exports instead of
// recursing forever.
func (l *linker) load(key string) (*goja.Object, error) {
	if exports, ok := l.loaded[key]; ok {
		return exports, nil
	}
	ms, ok := l.source(key)
	if !ok {
		return nil, fmt.Errorf("module %q not found", key)
	}

	wrapped := "(function(__exports, __import){ 'use strict';\n" + ms.code + "\n})"
	value, err := l.vm.RunScript(key, wrapped)
	if err != nil {
		return nil, err
	}
	factory, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("module %q did not compile to a callable", key)
	}

	exports := l.vm.NewObject()
	l.loaded[key] = exports

	importFn := l.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		resolved, verdict := l.resolve(spec, key)
		if verdict != treeOK {
			panic(l.vm.NewTypeError("Cannot resolve module '%s'", spec))
		}
		dep, err := l.load(resolved)
		if err != nil {
			panic(l.vm.NewTypeError("failed to load module '%s': %s", spec, err.Error()))
		}
		return dep
	})

	if _, err := factory(goja.Undefined(), exports, importFn); err != nil {
		delete(l.loaded, key)
		return nil, err
	}
	return exports, nil
}

var (
	reImportDefaultNamed = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([A-Za-z_$][\w$]*)[ \t]*,[ \t]*\{([^}]*)\}[ \t]*from[ \t]*['"]([^'"]+)['"][ \t]*;?`)
	reImportNamespace    = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+\*[ \t]+as[ \t]+([A-Za-z_$][\w$]*)[ \t]+from[ \t]*['"]([^'"]+)['"][ \t]*;?`)
	reImportNamed        = regexp.MustCompile(`(?m)^[ \t]*import[ \t]*\{([^}]*)\}[ \t]*from[ \t]*['"]([^'"]+)['"][ \t]*;?`)
	reImportDefault      = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([A-Za-z_$][\w$]*)[ \t]+from[ \t]*['"]([^'"]+)['"][ \t]*;?`)
	reImportBare         = regexp.MustCompile(`(?m)^[ \t]*import[ \t]*['"]([^'"]+)['"][ \t]*;?`)
	reExportFrom         = regexp.MustCompile(`(?m)^[ \t]*export[ \t]*\{([^}]*)\}[ \t]*from[ \t]*['"]([^'"]+)['"][ \t]*;?`)
	reExportList         = regexp.MustCompile(`(?m)^[ \t]*export[ \t]*\{([^}]*)\}[ \t]*;?[ \t]*$`)
	reExportDefault      = regexp.MustCompile(`(?m)^([ \t]*)export[ \t]+default[ \t]+`)
	reExportDecl         = regexp.MustCompile(`(?m)^([ \t]*)export[ \t]+((?:async[ \t]+)?function[ \t]*\*?[ \t]*|class[ \t]+|const[ \t]+|let[ \t]+|var[ \t]+)([A-Za-z_$][\w$]*)`)
)

func transformModule(source string) moduleSource {
	var specs []string
	var tail []string
	tmp := 0

	tmpName := func() string {
		tmp++
		return fmt.Sprintf("__module_%d", tmp)
	}

	out := reImportDefaultNamed.ReplaceAllStringFunc(source, func(m string) string {
		sub := reImportDefaultNamed.FindStringSubmatch(m)
		specs = append(specs, sub[3])
		name := tmpName()
		return fmt.Sprintf("const %s = __import(%q); const %s = %s.default !== undefined ? %s.default : %s; const {%s} = %s;",
			name, sub[3], sub[1], name, name, name, convertBindings(sub[2]), name)
	})
	out = reImportNamespace.ReplaceAllStringFunc(out, func(m string) string {
		sub := reImportNamespace.FindStringSubmatch(m)
		specs = append(specs, sub[2])
		return fmt.Sprintf("const %s = __import(%q);", sub[1], sub[2])
	})
	out = reImportNamed.ReplaceAllStringFunc(out, func(m string) string {
		sub := reImportNamed.FindStringSubmatch(m)
		specs = append(specs, sub[2])
		return fmt.Sprintf("const {%s} = __import(%q);", convertBindings(sub[1]), sub[2])
	})
	out = reImportDefault.ReplaceAllStringFunc(out, func(m string) string {
		sub := reImportDefault.FindStringSubmatch(m)
		specs = append(specs, sub[2])
		name := tmpName()
		return fmt.Sprintf("const %s = __import(%q); const %s = %s.default !== undefined ? %s.default : %s;",
			name, sub[2], sub[1], name, name, name)
	})
	out = reImportBare.ReplaceAllStringFunc(out, func(m string) string {
		sub := reImportBare.FindStringSubmatch(m)
		specs = append(specs, sub[1])
		return fmt.Sprintf("__import(%q);", sub[1])
	})

	out = reExportFrom.ReplaceAllStringFunc(out, func(m string) string {
		sub := reExportFrom.FindStringSubmatch(m)
		specs = append(specs, sub[2])
		name := tmpName()
		var sb strings.Builder
		fmt.Fprintf(&sb, "const %s = __import(%q);", name, sub[2])
		for _, b := range splitBindings(sub[1]) {
			fmt.Fprintf(&sb, " __exports.%s = %s.%s;", b.exported, name, b.local)
		}
		return sb.String()
	})
	out = reExportList.ReplaceAllStringFunc(out, func(m string) string {
		sub := reExportList.FindStringSubmatch(m)
		for _, b := range splitBindings(sub[1]) {
			tail = append(tail, fmt.Sprintf("__exports.%s = %s;", b.exported, b.local))
		}
		return ""
	})
	out = reExportDefault.ReplaceAllString(out, "${1}__exports.default = ")
	out = reExportDecl.ReplaceAllStringFunc(out, func(m string) string {
		sub := reExportDecl.FindStringSubmatch(m)
		tail = append(tail, fmt.Sprintf("__exports.%s = %s;", sub[3], sub[3]))
		return sub[1] + sub[2] + sub[3]
	})

	if len(tail) > 0 {
		out += "\n" + strings.Join(tail, "\n")
	}
	return moduleSource{code: out, specs: specs}
}

type moduleBinding struct {
	local    string
	exported string
}

func splitBindings(list string) []moduleBinding {
	var out []moduleBinding
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		switch {
		case len(fields) == 1:
			out = append(out, moduleBinding{local: fields[0], exported: fields[0]})
		case len(fields) == 3 && fields[1] == "as":
			out = append(out, moduleBinding{local: fields[0], exported: fields[2]})
		}
	}
	return out
}

func convertBindings(list string) string {
	var parts []string
	for _, b := range splitBindings(list) {
		if b.local == b.exported {
			parts = append(parts, b.local)
		} else {
			parts = append(parts, b.local+": "+b.exported)
		}
	}
	return strings.Join(parts, ", ")
}
