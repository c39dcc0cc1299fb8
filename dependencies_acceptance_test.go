package crmdesk_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestModuleDependencies_GinPresent(t *testing.T) {
	testModulePresence(t, "github.com/gin-gonic/gin")
}

func TestModuleDependencies_GormPresent(t *testing.T) {
	testModulePresence(t, "gorm.io/gorm")
	testModulePresence(t, "gorm.io/driver/postgres")
	testModulePresence(t, "github.com/glebarez/sqlite")
}

func TestModuleDependencies_KoanfPresent(t *testing.T) {
	testModulePresence(t, "github.com/knadh/koanf/v2")
}

func TestModuleDependencies_LoggerPresent(t *testing.T) {
	testModulePresence(t, "github.com/simp-lee/logger")
}

func TestModuleDependencies_UUIDPresent(t *testing.T) {
	testModulePresence(t, "github.com/google/uuid")
}

func TestModuleDependencies_GodotenvPresent(t *testing.T) {
	testModulePresence(t, "github.com/joho/godotenv")
}

func TestSources_NoStaleModulePath(t *testing.T) {
	t.Run("happy_repo_uses_current_module_path", func(t *testing.T) {
		matches, err := findImports(".", staleModulePath)
		if err != nil {
			t.Fatalf("scan repository: %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("expected no imports of %s, found in: %v", staleModulePath, matches)
		}
	})

	t.Run("error_fixture_with_stale_import_is_detected", func(t *testing.T) {
		fixture := `package app
import "github.com/simp-lee/gobase/internal/pkg"`
		if !importsPrefix(fixture, staleModulePath) {
			t.Fatal("expected stale import to be detected in fixture")
		}
	})
}

const staleModulePath = "github.com/simp-lee/gobase"

func testModulePresence(t *testing.T, module string) {
	t.Helper()

	t.Run("happy_present_in_real_go_mod", func(t *testing.T) {
		goMod, err := os.ReadFile("go.mod")
		if err != nil {
			t.Fatalf("read go.mod: %v", err)
		}
		if !moduleRequired(string(goMod), module) {
			t.Fatalf("expected module %q to be present in go.mod", module)
		}
	})

	t.Run("error_missing_module_in_fixture", func(t *testing.T) {
		fixture := `module example.com/demo

go 1.25.0

require (
	github.com/stretchr/testify v1.11.1
)`
		if moduleRequired(fixture, module) {
			t.Fatalf("expected fixture to not contain module %q", module)
		}
	})
}

func moduleRequired(goModContent, module string) bool {
	re := regexp.MustCompile(`(?m)^\s*(require\s+)?` + regexp.QuoteMeta(module) + `\s+v\S+`)
	return re.MatchString(goModContent)
}

// findImports lists the non-test .go files under root that import a package
// under prefix. Directories the go tool ignores are skipped.
func findImports(root, prefix string) ([]string, error) {
	matches := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		if importsPrefix(string(b), prefix) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func importsPrefix(content, prefix string) bool {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(prefix) + `(/[^"]*)?"`)
	return re.MatchString(content)
}
