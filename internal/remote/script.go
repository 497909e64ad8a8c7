package remote

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Dialect builds every script sent to the target. Nothing outside a
// Dialect knows the target's language.
type Dialect interface {
	// Ping returns a no-op script and the marker its output must contain.
	Ping() (script, marker string)
	// ExtendSearchPaths prepends binDirs to PATH and appends libDirs to the
	// module search path.
	ExtendSearchPaths(binDirs, libDirs []string) string
	DumpStacks() string
	// StartCallGraph starts tracing, rendering with tool into image on stop.
	StartCallGraph(tool, image string) string
	StopCallGraph() string
	// DumpHeap starts a background dump to raw, renamed to final when done.
	DumpHeap(raw, final string) string
	// HeapExporterMissing reports whether DumpHeap output means the heap
	// exporter is not installed in the target.
	HeapExporterMissing(output string) bool
	Version() string
}

//go:embed scripts/*
var scriptFS embed.FS

var scripts = template.Must(template.New("scripts").
	Funcs(template.FuncMap{"py": pyLiteral}).
	ParseFS(scriptFS, "scripts/*.tmpl"))

var dumpStacksScript = mustReadScript("scripts/dump_stacks.py")

// mustReadScript reads an embedded script. The scripts ship in the binary,
// so a failure is a build defect.
func mustReadScript(name string) string {
	b, err := scriptFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// pyLiteral renders a string or string slice as a Python literal. JSON
// string and list syntax is valid Python.
func pyLiteral(v interface{}) (string, error) {
	if ss, ok := v.([]string); ok && ss == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// PythonDialect targets CPython through pyrasite-style injection, with
// meliae for heap dumps and pycallgraph for call graphs.
type PythonDialect struct{}

const pingMarker = "pyscope-ok"

func (PythonDialect) Ping() (string, string) {
	return `print("` + pingMarker + `")`, pingMarker
}

func (PythonDialect) ExtendSearchPaths(binDirs, libDirs []string) string {
	return render("extend_paths.py.tmpl", map[string]interface{}{
		"BinDirs": binDirs,
		"LibDirs": libDirs,
	})
}

func (PythonDialect) DumpStacks() string {
	return dumpStacksScript
}

func (PythonDialect) StartCallGraph(tool, image string) string {
	return render("start_callgraph.py.tmpl", map[string]string{"Tool": tool, "Image": image})
}

func (PythonDialect) StopCallGraph() string {
	return "import pycallgraph; pycallgraph._pycallgraph.done()"
}

func (PythonDialect) DumpHeap(raw, final string) string {
	return render("dump_heap.py.tmpl", map[string]string{"Raw": raw, "Final": final})
}

func (PythonDialect) HeapExporterMissing(output string) bool {
	return strings.Contains(output, "No module named meliae") ||
		strings.Contains(output, "No module named 'meliae'")
}

func (PythonDialect) Version() string {
	return `import sys; print("Python " + sys.version)`
}

func render(name string, data interface{}) string {
	var buf bytes.Buffer
	if err := scripts.ExecuteTemplate(&buf, name, data); err != nil {
		panic(fmt.Sprintf("render %s: %v", name, err))
	}
	return buf.String()
}
