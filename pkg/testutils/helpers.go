package testutils

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTestFilesWithContent creates test files with specific content. Names
// may contain slashes; parent directories are created.
func CreateTestFilesWithContent(t testing.TB, dir string, files map[string]string) []string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// CreateDataFiles creates a small mix of eligible and ineligible files and
// returns the eligible ones in scan order
func CreateDataFiles(t testing.TB, dir string) []string {
	t.Helper()
	CreateTestFilesWithContent(t, dir, map[string]string{
		"notes.txt":           "not a data file",
		"orders/tmall.xlsx":   "PK\x03\x04",
		"orders/pdd.csv":      "订单号,订单状态\n1,交易成功\n",
		"summary.CSV":         "a,b\n1,2\n",
		"orders/old/jd.csv":   "id,total\n7,12.5\n",
		"orders/old/skip.pdf": "%PDF-1.4",
	})
	return []string{
		filepath.Join(dir, "orders", "old", "jd.csv"),
		filepath.Join(dir, "orders", "pdd.csv"),
		filepath.Join(dir, "orders", "tmall.xlsx"),
		filepath.Join(dir, "summary.CSV"),
	}
}

// StripANSI removes ANSI escape sequences from a string
func StripANSI(str string) string {
	var result []rune
	inEscape := false
	for _, r := range str {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
				inEscape = false
			}
			continue
		}
		result = append(result, r)
	}
	return string(result)
}
