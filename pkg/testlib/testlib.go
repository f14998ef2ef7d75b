package testlib

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

// StubBinary writes an executable shell script named name into dir and
// returns its path. Tests use these stubs in place of the real backup
// binaries.
func StubBinary(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := ioutil.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}
