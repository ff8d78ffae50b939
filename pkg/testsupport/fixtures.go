package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// FixturePath resolves name inside the calling package's testdata directory.
func FixturePath(name string) string {
	return filepath.Join("testdata", name)
}

// OpenFixture opens a file under testdata and closes it when the test ends.
func OpenFixture(t testing.TB, name string) *os.File {
	t.Helper()
	f, err := os.Open(FixturePath(name))
	if err != nil {
		t.Fatalf("open fixture %s: %v", name, err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// LoadFixtureJSON decodes the JSON document at path into dest.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("load fixture %s: %v", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(dest); err != nil {
		t.Fatalf("decode fixture %s: %v", path, err)
	}
}
