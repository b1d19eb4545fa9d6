// Package output turns history manifests into local file paths.
package output

import (
	"path/filepath"
	"sort"
	"strconv"

	"comfyd/internal/comfy"
	"comfyd/internal/common/fsutil"
)

// Collect extracts produced media paths from a manifest by joining each
// descriptor's filename onto outputDir. Ordering is stable: node ids
// ascending (numeric when both parse), images before videos within a
// node, list order within each list. Paths that do not exist on disk
// are dropped; the engine may have cleaned them up or never finished
// writing them. Repeated filenames are kept.
func Collect(m comfy.Manifest, outputDir string) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })

	var files []string
	for _, id := range ids {
		node := m[id]
		files = appendExisting(files, node.Images, outputDir)
		files = appendExisting(files, node.Videos, outputDir)
	}
	return files
}

func appendExisting(files []string, refs []comfy.FileRef, outputDir string) []string {
	for _, ref := range refs {
		if ref.Filename == "" {
			continue
		}
		p := filepath.Join(outputDir, ref.Filename)
		if fsutil.PathExists(p) {
			files = append(files, p)
		}
	}
	return files
}

// idLess orders engine node ids numerically when possible; ids are
// decimal strings in practice, so "9" sorts before "10".
func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
