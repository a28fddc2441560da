package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-recipe-query/recipe"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadRecipes loads a JSON array of recipe details and checks every record
// against the domain invariants.
func LoadRecipes(t *testing.T, path string) []recipe.Detail {
	t.Helper()

	var details []recipe.Detail
	LoadFixtureJSON(t, path, &details)

	for _, d := range details {
		if err := d.Validate(); err != nil {
			t.Fatalf("invalid recipe fixture in %s: %v", path, err)
		}
	}
	return details
}

// WriteFixtureJSON writes data as indented JSON, creating parent directories.
func WriteFixtureJSON(t *testing.T, path string, data any) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal JSON fixture %s: %v", path, err)
	}

	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
