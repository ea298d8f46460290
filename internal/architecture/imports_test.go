package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type violation struct {
	file string
	imp  string
	rule string
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)

	violations := walkImports(t, root, func(rel, imp string) string {
		for _, bad := range disallowedImports(modulePath, layerFor(rel)) {
			if strings.HasPrefix(imp, bad) {
				return bad
			}
		}
		return ""
	})
	report(t, "import boundary violations:", violations)
}

// Concrete broker and vector store drivers are chosen at bootstrap only.
func TestDriversImportedOnlyFromApp(t *testing.T) {
	root, modulePath := moduleRoot(t)
	drivers := []string{
		modulePath + "/internal/platform/qdrant",
		modulePath + "/internal/queue/amqp",
		modulePath + "/internal/queue/kafka",
		modulePath + "/internal/queue/redisstream",
	}

	violations := walkImports(t, root, func(rel, imp string) string {
		if strings.HasPrefix(rel, "internal/app/") {
			return ""
		}
		for _, d := range drivers {
			// A driver may import its own subpackages.
			if imp == d && !strings.HasPrefix(rel, strings.TrimPrefix(d, modulePath+"/")+"/") {
				return d
			}
		}
		return ""
	})
	report(t, "driver imports found outside internal/app (depend on the queue or vectorstore interfaces instead):", violations)
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/queue/"):
		return "queue"
	case strings.HasPrefix(rel, "internal/vectorstore/"):
		return "vectorstore"
	case strings.HasPrefix(rel, "internal/ingestion/"):
		return "ingestion"
	case strings.HasPrefix(rel, "internal/http/"):
		return "http"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	switch layer {
	case "platform", "queue", "vectorstore":
		return []string{
			modulePath + "/internal/ingestion/",
			modulePath + "/internal/http",
			modulePath + "/internal/app",
		}
	case "ingestion":
		return []string{
			modulePath + "/internal/http",
			modulePath + "/internal/app",
		}
	case "http":
		return []string{
			modulePath + "/internal/app",
			modulePath + "/internal/queue",
		}
	default:
		return nil
	}
}

func walkImports(t *testing.T, root string, check func(rel, imp string) string) []violation {
	t.Helper()

	internalDir := filepath.Join(root, "internal")
	fset := token.NewFileSet()
	var violations []violation

	walkErr := filepath.WalkDir(internalDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "testdata", ".gocache":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			if rule := check(rel, imp); rule != "" {
				violations = append(violations, violation{file: rel, imp: imp, rule: rule})
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return violations
}

func report(t *testing.T, header string, violations []violation) {
	t.Helper()
	if len(violations) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", v.file, v.imp, v.rule)
	}
	t.Fatal(b.String())
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
