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

// Command testreport joins `go test -json` output with the annotations in
// test doc comments (TestPurpose, Scope, Security, Expected, Test Case ID)
// and writes JSON, Markdown and HTML reports.
//
//	go test -json ./... > test.json
//	go run ./scripts/testreport -input test.json -out-md report.md
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

func main() {
	input := flag.String("input", "", "Path to go test -json output")
	root := flag.String("root", ".", "Repository root to scan for annotations")
	outJSON := flag.String("out-json", "", "Path for the JSON report")
	outMD := flag.String("out-md", "", "Path for the Markdown report")
	outHTML := flag.String("out-html", "", "Path for the HTML report")
	title := flag.String("title", "Hangar Test Report", "Report title")
	only := flag.String("category", "", "Comma-separated categories to include")
	annotatedOnly := flag.Bool("annotated", false, "Only include tests with a Test Case ID")
	flag.Parse()

	if *input == "" || (*outJSON == "" && *outMD == "" && *outHTML == "") {
		fmt.Fprintln(os.Stderr, "usage: testreport -input <go test -json file> [-out-json f] [-out-md f] [-out-html f]")
		os.Exit(2)
	}

	modulePath, err := readModulePath(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
		os.Exit(1)
	}
	annotations, err := ScanAnnotations(*root, modulePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
		os.Exit(1)
	}
	results, err := MergeEvents(f, annotations, modulePath)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
		os.Exit(1)
	}

	var filter Filter
	if *only != "" {
		filter.Categories = strings.Split(*only, ",")
	}
	filter.AnnotatedOnly = *annotatedOnly
	report := NewReport(*title, filter.Apply(results))

	writers := []struct {
		path  string
		write func(*Report, *os.File) error
	}{
		{*outJSON, func(r *Report, f *os.File) error { return r.WriteJSON(f) }},
		{*outMD, func(r *Report, f *os.File) error { return r.WriteMarkdown(f) }},
		{*outHTML, func(r *Report, f *os.File) error { return r.WriteHTML(f) }},
	}
	for _, w := range writers {
		if w.path == "" {
			continue
		}
		if err := writeFile(w.path, report, w.write); err != nil {
			fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
			os.Exit(1)
		}
	}

	// CI gates on the exit status.
	if report.Failed > 0 {
		fmt.Fprintf(os.Stderr, "%d tests failed\n", report.Failed)
		os.Exit(1)
	}
}

func writeFile(path string, r *Report, write func(*Report, *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(r, f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
