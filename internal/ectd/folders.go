package ectd

import (
	"path"
	"sort"
	"strings"
)

// FolderNode is one directory in the package tree, built purely from the
// directory portions of target paths.
type FolderNode struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Files    []string      `json:"files,omitempty"`
	Children []*FolderNode `json:"children,omitempty"`
}

// BuildFolderTree groups target paths into a directory tree. Each path
// segment becomes one node; files that land in the same leaf folder are
// merged into that node's Files list. Children at every level are sorted
// with folder-name ordering and never duplicated.
func BuildFolderTree(targetPaths []string) []*FolderNode {
	roots := []*FolderNode{}
	index := map[string]*FolderNode{}

	// ensure returns the node for dir, creating it and any missing
	// ancestors on first sight.
	var ensure func(dir string) *FolderNode
	ensure = func(dir string) *FolderNode {
		if n, ok := index[dir]; ok {
			return n
		}
		n := &FolderNode{
			Name: path.Base(dir),
			Path: dir,
		}
		index[dir] = n
		parent := path.Dir(dir)
		if parent == "." || parent == "/" {
			roots = append(roots, n)
		} else {
			p := ensure(parent)
			p.Children = append(p.Children, n)
		}
		return n
	}

	for _, tp := range targetPaths {
		tp = strings.Trim(tp, "/")
		if tp == "" {
			continue
		}
		dir, file := path.Split(tp)
		dir = strings.Trim(dir, "/")
		if dir == "" {
			continue
		}
		n := ensure(dir)
		if !containsString(n.Files, file) {
			n.Files = append(n.Files, file)
		}
	}

	sortFolderTree(roots)
	return roots
}

func sortFolderTree(nodes []*FolderNode) {
	sort.Slice(nodes, func(i, j int) bool {
		return CompareFolderNames(nodes[i].Name, nodes[j].Name) < 0
	})
	for _, n := range nodes {
		sort.Strings(n.Files)
		sortFolderTree(n.Children)
	}
}

// WalkFolders visits every node in the tree depth-first.
func WalkFolders(nodes []*FolderNode, fn func(*FolderNode)) {
	for _, n := range nodes {
		fn(n)
		WalkFolders(n.Children, fn)
	}
}

// CountFolders returns the total number of nodes in the tree.
func CountFolders(nodes []*FolderNode) int {
	total := 0
	WalkFolders(nodes, func(*FolderNode) { total++ })
	return total
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
