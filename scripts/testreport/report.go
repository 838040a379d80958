// Copyright 2026 The Hangar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// Annotation is the metadata parsed from a test's doc comment.
type Annotation struct {
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
}

var annotationKeys = []struct {
	prefix string
	set    func(*Annotation, string)
}{
	{"TestPurpose:", func(a *Annotation, v string) { a.Purpose = v }},
	{"Scope:", func(a *Annotation, v string) { a.Scope = v }},
	{"Security:", func(a *Annotation, v string) { a.Security = v }},
	{"Expected:", func(a *Annotation, v string) { a.Expected = v }},
	{"Test Case ID:", func(a *Annotation, v string) { a.TestCaseID = v }},
}

// Status of a test in the report.
type Status string

const (
	StatusPass   Status = "pass"
	StatusFail   Status = "fail"
	StatusSkip   Status = "skip"
	StatusNotRun Status = "not run"
)

// Result is one test, or subtest, in the report.
type Result struct {
	Package    string     `json:"package"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Status     Status     `json:"status"`
	Elapsed    float64    `json:"elapsed_seconds"`
	Output     string     `json:"failure_output,omitempty"`
	Annotation Annotation `json:"annotation"`
}

// categories maps a package directory to its report section. The first
// matching prefix wins.
var categories = []struct {
	dir  string
	name string
}{
	{"internal/transport/http", "HTTP Gate"},
	{"internal/authz", "Capabilities"},
	{"internal/policy", "Route Policy"},
	{"internal/rbac", "Roles"},
	{"internal/session", "Sessions"},
	{"internal/token", "Sessions"},
	{"internal/identity", "Accounts"},
	{"internal/onboarding", "Onboarding"},
	{"internal/store", "Storage"},
	{"internal/audit", "Audit"},
	{"cmd", "Tooling"},
}

var categoryOrder = []string{
	"HTTP Gate", "Capabilities", "Route Policy", "Roles", "Sessions",
	"Accounts", "Onboarding", "Storage", "Audit", "Tooling", "Other",
}

// CategoryOf returns the report section for a package import path.
func CategoryOf(modulePath, pkg string) string {
	dir := strings.TrimPrefix(strings.TrimPrefix(pkg, modulePath), "/")
	for _, c := range categories {
		if dir == c.dir || strings.HasPrefix(dir, c.dir+"/") {
			return c.name
		}
	}
	return "Other"
}

// readModulePath returns the module directive of root/go.mod.
func readModulePath(root string) (string, error) {
	f, err := os.Open(filepath.Join(root, "go.mod"))
	if err != nil {
		return "", err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(s.Text()), "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`), nil
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", errors.New("go.mod has no module directive")
}

// ScanAnnotations parses every _test.go file under root and returns the
// annotations of top-level Test functions keyed by "<import path>.<name>".
func ScanAnnotations(root, modulePath string) (map[string]Annotation, error) {
	out := make(map[string]Annotation)
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, "_test.go") {
			return nil
		}

		file, err := parser.ParseFile(fset, p, nil, parser.ParseComments)
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, filepath.Dir(p))
		if err != nil {
			return err
		}
		pkg := modulePath
		if rel != "." {
			pkg = path.Join(modulePath, filepath.ToSlash(rel))
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || !strings.HasPrefix(fn.Name.Name, "Test") {
				continue
			}
			out[pkg+"."+fn.Name.Name] = parseAnnotation(fn.Doc)
		}
		return nil
	})
	return out, err
}

func parseAnnotation(doc *ast.CommentGroup) Annotation {
	var a Annotation
	if doc == nil {
		return a
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		for _, k := range annotationKeys {
			if v, ok := strings.CutPrefix(text, k.prefix); ok {
				k.set(&a, strings.TrimSpace(v))
				break
			}
		}
	}
	return a
}

type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// MergeEvents reads `go test -json` output and joins it with annotations.
// Annotated tests that never appear in the stream are reported as not run.
// Subtests inherit the annotation of their top-level test.
func MergeEvents(r io.Reader, annotations map[string]Annotation, modulePath string) ([]Result, error) {
	byKey := make(map[string]*Result)
	for key, a := range annotations {
		i := strings.LastIndex(key, ".")
		pkg, name := key[:i], key[i+1:]
		byKey[key] = &Result{
			Package:    pkg,
			Name:       name,
			Category:   CategoryOf(modulePath, pkg),
			Status:     StatusNotRun,
			Annotation: a,
		}
	}

	dec := json.NewDecoder(r)
	for {
		var ev testEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode test event: %w", err)
		}
		if ev.Test == "" {
			continue
		}

		key := ev.Package + "." + ev.Test
		res, ok := byKey[key]
		if !ok {
			res = &Result{
				Package:  ev.Package,
				Name:     ev.Test,
				Category: CategoryOf(modulePath, ev.Package),
			}
			parent, _, _ := strings.Cut(ev.Test, "/")
			if a, found := annotations[ev.Package+"."+parent]; found {
				res.Annotation = a
			}
			byKey[key] = res
		}

		switch ev.Action {
		case "pass":
			res.Status, res.Elapsed = StatusPass, ev.Elapsed
		case "fail":
			res.Status, res.Elapsed = StatusFail, ev.Elapsed
		case "skip":
			res.Status = StatusSkip
		case "output":
			res.Output += ev.Output
		}
	}

	results := make([]Result, 0, len(byKey))
	for _, res := range byKey {
		if res.Status != StatusFail {
			res.Output = ""
		}
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Package != results[j].Package {
			return results[i].Package < results[j].Package
		}
		return results[i].Name < results[j].Name
	})
	return results, nil
}

// Filter narrows the results included in a report.
type Filter struct {
	Categories    []string
	AnnotatedOnly bool
}

// Apply returns the results that pass the filter.
func (f Filter) Apply(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if len(f.Categories) > 0 && !slices.ContainsFunc(f.Categories, func(c string) bool {
			return strings.EqualFold(strings.TrimSpace(c), r.Category)
		}) {
			continue
		}
		if f.AnnotatedOnly && r.Annotation.TestCaseID == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Section is one category of a report.
type Section struct {
	Category string
	Results  []Result
}

// Report is the rendered summary.
type Report struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Results     []Result  `json:"results"`
}

// NewReport counts results by status.
func NewReport(title string, results []Result) *Report {
	r := &Report{Title: title, GeneratedAt: time.Now().UTC(), Results: results}
	for _, res := range results {
		r.Total++
		switch res.Status {
		case StatusPass:
			r.Passed++
		case StatusFail:
			r.Failed++
		case StatusSkip:
			r.Skipped++
		}
	}
	return r
}

// PassRate is the percentage of passing results.
func (r *Report) PassRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total) * 100
}

// Sections groups results by category in a fixed order.
func (r *Report) Sections() []Section {
	grouped := make(map[string][]Result)
	for _, res := range r.Results {
		grouped[res.Category] = append(grouped[res.Category], res)
	}
	var out []Section
	for _, c := range categoryOrder {
		if len(grouped[c]) > 0 {
			out = append(out, Section{Category: c, Results: grouped[c]})
		}
	}
	return out
}

// Failures returns the failed results.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFail {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *Report) WriteMarkdown(w io.Writer) error {
	var b strings.Builder
	status := "PASSED"
	if r.Failed > 0 {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	fmt.Fprintf(&b, "**Generated:** %s  \n**Status:** %s\n\n", r.GeneratedAt.Format(time.RFC3339), status)
	b.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %.1f%% |\n\n", r.Total, r.Passed, r.Failed, r.Skipped, r.PassRate())

	for _, s := range r.Sections() {
		fmt.Fprintf(&b, "## %s\n\n| ID | Test | Status | Purpose | Security |\n|---|---|---|---|---|\n", s.Category)
		for _, res := range s.Results {
			fmt.Fprintf(&b, "| %s | `%s` | %s | %s | %s |\n",
				res.Annotation.TestCaseID, res.Name, res.Status,
				escapeCell(res.Annotation.Purpose), escapeCell(res.Annotation.Security))
		}
		b.WriteString("\n")
	}

	if failures := r.Failures(); len(failures) > 0 {
		b.WriteString("## Failures\n\n")
		for _, res := range failures {
			fmt.Fprintf(&b, "### %s (%s)\n\n```\n%s```\n\n", res.Name, res.Package, res.Output)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #1e293b; }
table { width: 100%; border-collapse: collapse; margin-bottom: 2rem; }
th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid #e2e8f0; font-size: 0.875rem; vertical-align: top; }
.pass { color: #166534; } .fail { color: #991b1b; } .skip, .not { color: #64748b; }
pre { background: #0f172a; color: #f8fafc; padding: 1rem; overflow-x: auto; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}: {{.Total}} tests, {{.Passed}} passed, {{.Failed}} failed, {{.Skipped}} skipped ({{printf "%.1f" .PassRate}}%)</p>
{{range .Sections}}
<h2>{{.Category}}</h2>
<table>
<tr><th>ID</th><th>Test</th><th>Status</th><th>Purpose</th><th>Security</th></tr>
{{range .Results}}<tr><td>{{.Annotation.TestCaseID}}</td><td><code>{{.Name}}</code></td><td class="{{.Status}}">{{.Status}}</td><td>{{.Annotation.Purpose}}</td><td>{{.Annotation.Security}}</td></tr>
{{end}}</table>
{{end}}
{{with .Failures}}<h2>Failures</h2>{{range .}}<h3>{{.Name}}</h3><pre>{{.Output}}</pre>{{end}}{{end}}
</body>
</html>
`))

func (r *Report) WriteHTML(w io.Writer) error {
	return htmlReport.Execute(w, r)
}
