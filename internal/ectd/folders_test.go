package ectd

import "testing"

func TestBuildFolderTree_MergesSharedLeafFolder(t *testing.T) {
	paths := []string{
		"m5/study-001/16-1/protocol.pdf",
		"m5/study-001/16-1/protocol-amendment.pdf",
		"m5/study-001/16-2/stats.pdf",
	}
	roots := BuildFolderTree(paths)

	if len(roots) != 1 || roots[0].Name != "m5" {
		t.Fatalf("expected single m5 root, got %+v", roots)
	}
	study := roots[0].Children
	if len(study) != 1 || study[0].Name != "study-001" {
		t.Fatalf("expected one study folder, got %+v", study)
	}
	leaves := study[0].Children
	if len(leaves) != 2 {
		t.Fatalf("expected two leaf folders, got %d", len(leaves))
	}
	if leaves[0].Name != "16-1" || leaves[1].Name != "16-2" {
		t.Errorf("unexpected leaf order: %s, %s", leaves[0].Name, leaves[1].Name)
	}
	if len(leaves[0].Files) != 2 {
		t.Errorf("expected 2 files in 16-1, got %d", len(leaves[0].Files))
	}
	if len(leaves[1].Files) != 1 {
		t.Errorf("expected 1 file in 16-2, got %d", len(leaves[1].Files))
	}
}

func TestBuildFolderTree_NumericFolderOrder(t *testing.T) {
	paths := []string{
		"m5/s/16-10/a.pdf",
		"m5/s/16-2/b.pdf",
	}
	roots := BuildFolderTree(paths)
	leaves := roots[0].Children[0].Children
	if leaves[0].Name != "16-2" || leaves[1].Name != "16-10" {
		t.Errorf("expected numeric folder order 16-2 < 16-10, got %s, %s", leaves[0].Name, leaves[1].Name)
	}
}

func TestBuildFolderTree_NoDuplicateChildren(t *testing.T) {
	paths := []string{
		"m5/s/16-1/a.pdf",
		"m5/s/16-1/a.pdf",
		"m1/us/cover.pdf",
	}
	roots := BuildFolderTree(paths)
	if len(roots) != 2 {
		t.Fatalf("expected roots m1 and m5, got %d", len(roots))
	}
	if roots[0].Name != "m1" || roots[1].Name != "m5" {
		t.Errorf("unexpected root order: %s, %s", roots[0].Name, roots[1].Name)
	}

	var leaf *FolderNode
	WalkFolders(roots, func(n *FolderNode) {
		if n.Name == "16-1" {
			leaf = n
		}
	})
	if leaf == nil {
		t.Fatal("missing 16-1 node")
	}
	if len(leaf.Files) != 1 {
		t.Errorf("expected duplicate path collapsed to 1 file, got %d", len(leaf.Files))
	}
}

func TestBuildFolderTree_EmptyAndBareInputs(t *testing.T) {
	roots := BuildFolderTree([]string{"", "justafile.pdf"})
	if len(roots) != 0 {
		t.Errorf("expected no folders for rootless inputs, got %d", len(roots))
	}
	if CountFolders(roots) != 0 {
		t.Errorf("expected zero folder count")
	}
}

func TestCountFolders(t *testing.T) {
	roots := BuildFolderTree([]string{"m5/s/16-1/a.pdf"})
	if got := CountFolders(roots); got != 3 {
		t.Errorf("expected 3 folders (m5, s, 16-1), got %d", got)
	}
}
