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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModule = "example.com/hangar"

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return root
}

const annotatedTest = `package authz

import "testing"

// TestPurpose: Validates that deny rows win.
// Scope: Unit
// Security: Least privilege
// Test Case ID: CAP-01
func TestDenyWins(t *testing.T) {}

func TestPlain(t *testing.T) {}

func helper() {}
`

func TestScanAnnotations(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":                       "module " + testModule + "\n\ngo 1.25\n",
		"internal/authz/authz_test.go": annotatedTest,
		"_examples/x/x_test.go":        "package x\n\nfunc TestIgnored(t *testing.T) {}\n",
	})

	mod, err := readModulePath(root)
	require.NoError(t, err)
	assert.Equal(t, testModule, mod)

	got, err := ScanAnnotations(root, mod)
	require.NoError(t, err)
	require.Len(t, got, 2)

	a := got[testModule+"/internal/authz.TestDenyWins"]
	assert.Equal(t, "Validates that deny rows win.", a.Purpose)
	assert.Equal(t, "Least privilege", a.Security)
	assert.Equal(t, "CAP-01", a.TestCaseID)
	assert.Equal(t, Annotation{}, got[testModule+"/internal/authz.TestPlain"])
}

func TestMergeEvents(t *testing.T) {
	pkg := testModule + "/internal/authz"
	annotations := map[string]Annotation{
		pkg + ".TestDenyWins": {TestCaseID: "CAP-01"},
		pkg + ".TestMissing":  {TestCaseID: "CAP-02"},
	}
	stream := strings.Join([]string{
		`{"Action":"run","Package":"` + pkg + `","Test":"TestDenyWins"}`,
		`{"Action":"run","Package":"` + pkg + `","Test":"TestDenyWins/pilot"}`,
		`{"Action":"output","Package":"` + pkg + `","Test":"TestDenyWins/pilot","Output":"boom\n"}`,
		`{"Action":"fail","Package":"` + pkg + `","Test":"TestDenyWins/pilot","Elapsed":0.01}`,
		`{"Action":"pass","Package":"` + pkg + `","Test":"TestDenyWins","Elapsed":0.02}`,
		`{"Action":"pass","Package":"` + pkg + `","Elapsed":0.03}`,
	}, "\n")

	results, err := MergeEvents(strings.NewReader(stream), annotations, testModule)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := make(map[string]Result)
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusPass, byName["TestDenyWins"].Status)
	assert.Empty(t, byName["TestDenyWins"].Output)
	assert.Equal(t, StatusNotRun, byName["TestMissing"].Status)

	sub := byName["TestDenyWins/pilot"]
	assert.Equal(t, StatusFail, sub.Status)
	assert.Equal(t, "CAP-01", sub.Annotation.TestCaseID)
	assert.Equal(t, "boom\n", sub.Output)
	assert.Equal(t, "Capabilities", sub.Category)

	report := NewReport("t", results)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Failures(), 1)
}

func TestMergeEvents_RejectsGarbage(t *testing.T) {
	_, err := MergeEvents(strings.NewReader("not json"), nil, testModule)
	assert.Error(t, err)
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		pkg  string
		want string
	}{
		{testModule + "/internal/transport/http", "HTTP Gate"},
		{testModule + "/internal/store/postgres", "Storage"},
		{testModule + "/internal/token", "Sessions"},
		{testModule + "/cmd/hangarctl", "Tooling"},
		{testModule + "/internal/authzx", "Other"},
		{"other.org/pkg", "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(testModule, tt.pkg))
		})
	}
}

func TestFilter(t *testing.T) {
	results := []Result{
		{Name: "A", Category: "Roles", Annotation: Annotation{TestCaseID: "R-1"}},
		{Name: "B", Category: "Roles"},
		{Name: "C", Category: "Storage"},
	}
	assert.Len(t, Filter{Categories: []string{"roles"}}.Apply(results), 2)
	assert.Len(t, Filter{AnnotatedOnly: true}.Apply(results), 1)
	assert.Len(t, Filter{}.Apply(results), 3)
}

func TestReportWriters(t *testing.T) {
	report := NewReport("Hangar", []Result{
		{Name: "TestA", Category: "Roles", Status: StatusPass, Annotation: Annotation{Purpose: "a|b", TestCaseID: "R-1"}},
		{Name: "TestB", Category: "Storage", Status: StatusFail, Output: "<oops>"},
	})

	var md bytes.Buffer
	require.NoError(t, report.WriteMarkdown(&md))
	assert.Contains(t, md.String(), "## Roles")
	assert.Contains(t, md.String(), `a\|b`)
	assert.Contains(t, md.String(), "## Failures")
	assert.Less(t, strings.Index(md.String(), "## Roles"), strings.Index(md.String(), "## Storage"))

	var html bytes.Buffer
	require.NoError(t, report.WriteHTML(&html))
	assert.Contains(t, html.String(), "&lt;oops&gt;")
	assert.NotContains(t, html.String(), "<oops>")

	var js bytes.Buffer
	require.NoError(t, report.WriteJSON(&js))
	assert.Contains(t, js.String(), `"failed": 1`)
}
