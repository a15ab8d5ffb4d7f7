package output

import (
	"path"
	"strings"

	"github.com/disiqueira/gotree/v3"
)

// VisualFileTree renders slash-separated paths as a tree below a root label.
type VisualFileTree struct {
	tree gotree.Tree
	dirs map[string]gotree.Tree
}

func NewVisualFileTree(rootLabel string) VisualFileTree {
	return VisualFileTree{tree: gotree.New(rootLabel), dirs: make(map[string]gotree.Tree)}
}

func (t VisualFileTree) getDir(dirPath string) (dir gotree.Tree) {
	if dirPath == "." || dirPath == "/" {
		return t.tree
	}
	dir = t.dirs[dirPath]
	if dir == nil {
		parentDir := t.getDir(path.Dir(dirPath))
		dir = parentDir.Add(path.Base(dirPath))
		t.dirs[dirPath] = dir
	}
	return
}

// InsertPath adds a leaf for the given path, creating nodes for missing parents.
// Paths already known as directory nodes are not added again.
func (t VisualFileTree) InsertPath(filePath string, nodePrefix string) {
	filePath = strings.TrimPrefix(path.Clean(filePath), "/")
	if _, isDir := t.dirs[filePath]; isDir {
		return
	}
	dir := t.getDir(path.Dir(filePath))
	dir.Add(nodePrefix + path.Base(filePath))
}

// InsertDir adds a node for the given directory path that later paths below it are attached to.
func (t VisualFileTree) InsertDir(dirPath string) {
	t.getDir(strings.TrimPrefix(path.Clean(dirPath), "/"))
}

func (t VisualFileTree) Render() string {
	return t.tree.Print()
}
