package docs

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

type operation struct {
	OperationID string `json:"operationId"`
	Parameters  []struct {
		Name string `json:"name"`
		In   string `json:"in"`
	} `json:"parameters"`
	Responses map[string]struct {
		Schema *struct {
			Ref string `json:"$ref"`
		} `json:"schema"`
		Headers map[string]any `json:"headers"`
	} `json:"responses"`
}

type document struct {
	BasePath    string                          `json:"basePath"`
	Paths       map[string]map[string]operation `json:"paths"`
	Definitions map[string]json.RawMessage      `json:"definitions"`
}

// annotated is what one handler's godoc block declares.
type annotated struct {
	file, id, path, method string
	params                 []string          // "in:name"
	codes                  map[string]string // status -> model
	headers                map[string][]string
}

func loadDocument(t *testing.T) document {
	t.Helper()
	var doc document
	if err := json.Unmarshal([]byte(SwaggerInfo.ReadDoc()), &doc); err != nil {
		t.Fatalf("rendered document is not JSON: %v", err)
	}
	return doc
}

func parseAnnotations(t *testing.T) []annotated {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("..", "http", "handlers", "*.go"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no handler sources: %v", err)
	}
	var out []annotated
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := os.Open(name)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		cur := annotated{file: filepath.Base(name), codes: map[string]string{}, headers: map[string][]string{}}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if !strings.HasPrefix(line, "// @") {
				if strings.HasPrefix(line, "func ") {
					cur = annotated{file: filepath.Base(name), codes: map[string]string{}, headers: map[string][]string{}}
				}
				continue
			}
			fields := strings.Fields(strings.TrimPrefix(line, "//"))
			switch fields[0] {
			case "@ID":
				cur.id = fields[1]
			case "@Param":
				cur.params = append(cur.params, fields[2]+":"+fields[1])
			case "@Success", "@Failure":
				model := ""
				if fields[2] == "{object}" {
					model = fields[3]
				}
				cur.codes[fields[1]] = model
			case "@Header":
				cur.headers[fields[1]] = append(cur.headers[fields[1]], fields[3])
			case "@Router":
				cur.path = fields[1]
				cur.method = strings.Trim(fields[2], "[]")
				out = append(out, cur)
			}
		}
		_ = f.Close()
		if err := sc.Err(); err != nil {
			t.Fatalf("scan %s: %v", name, err)
		}
	}
	return out
}

func TestDocument_MatchesHandlerAnnotations(t *testing.T) {
	doc := loadDocument(t)
	ops := parseAnnotations(t)
	if len(ops) < 12 {
		t.Fatalf("found only %d annotated handlers", len(ops))
	}

	seen := map[string]bool{}
	for _, a := range ops {
		key := a.method + " " + a.path
		seen[key] = true
		op, ok := doc.Paths[a.path][a.method]
		if !ok {
			t.Errorf("%s: %s missing from the document", a.file, key)
			continue
		}
		if op.OperationID != a.id {
			t.Errorf("%s: operationId %q, annotated %q", key, op.OperationID, a.id)
		}

		var docParams []string
		for _, p := range op.Parameters {
			docParams = append(docParams, p.In+":"+p.Name)
		}
		sort.Strings(docParams)
		sort.Strings(a.params)
		if strings.Join(docParams, ",") != strings.Join(a.params, ",") {
			t.Errorf("%s: parameters %v, annotated %v", key, docParams, a.params)
		}

		for code, model := range a.codes {
			resp, ok := op.Responses[code]
			if !ok {
				t.Errorf("%s: response %s missing", key, code)
				continue
			}
			if model == "" {
				continue
			}
			if resp.Schema == nil || resp.Schema.Ref != "#/definitions/"+model {
				t.Errorf("%s %s: schema %+v, annotated %s", key, code, resp.Schema, model)
			}
			if _, ok := doc.Definitions[model]; !ok {
				t.Errorf("%s %s: definition %s missing", key, code, model)
			}
		}
		for code := range op.Responses {
			if _, ok := a.codes[code]; !ok {
				t.Errorf("%s: response %s is not annotated", key, code)
			}
		}
		for code, names := range a.headers {
			for _, h := range names {
				if _, ok := op.Responses[code].Headers[h]; !ok {
					t.Errorf("%s %s: header %s missing", key, code, h)
				}
			}
		}
	}

	for path, methods := range doc.Paths {
		for method := range methods {
			if !seen[method+" "+path] {
				t.Errorf("%s %s documented but no handler annotates it", method, path)
			}
		}
	}
}

func TestDocument_SuperActionContract(t *testing.T) {
	doc := loadDocument(t)
	if doc.BasePath != "/api/v1" {
		t.Fatalf("basePath = %q", doc.BasePath)
	}

	var resp struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(doc.Definitions["handlers.SuperActionResponse"], &resp); err != nil {
		t.Fatalf("decode SuperActionResponse: %v", err)
	}
	for _, field := range []string{"success", "processedCount", "failedCount", "failedIds", "actionId", "heldBack", "message", "error"} {
		if _, ok := resp.Properties[field]; !ok {
			t.Errorf("SuperActionResponse lacks %q", field)
		}
	}

	exec := doc.Paths["/super-actions"]["post"]
	if _, ok := exec.Responses["200"].Headers["Idempotency-Replayed"]; !ok {
		t.Errorf("execute 200 must document Idempotency-Replayed")
	}
	undo := doc.Paths["/super-actions/{id}/undo"]["post"]
	for _, code := range []string{"404", "409", "410"} {
		if _, ok := undo.Responses[code]; !ok {
			t.Errorf("undo lacks %s", code)
		}
	}
}
