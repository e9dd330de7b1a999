package pdfproc

import (
	"strings"
	"testing"

	"github.com/clindesk/ectdpack/internal/pdfobj"
)

func newTestDoc(t *testing.T, pages int) *pdfobj.Document {
	t.Helper()
	doc := pdfobj.NewDocument()
	for i := 0; i < pages; i++ {
		if _, err := doc.AppendPage(612, 792, nil, nil); err != nil {
			t.Fatalf("AppendPage: %v", err)
		}
	}
	return doc
}

func outlineRoot(t *testing.T, doc *pdfobj.Document) pdfobj.Dict {
	t.Helper()
	cat, err := doc.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	root, ok := doc.ResolveDict(cat["Outlines"])
	if !ok {
		t.Fatal("catalog has no /Outlines")
	}
	return root
}

func TestInjectBookmarks_DropsInvalidPages(t *testing.T) {
	doc := newTestDoc(t, 10)
	specs := []BookmarkSpec{
		{Title: "Valid", PageNumber: 1},
		{Title: "Zero", PageNumber: 0},
		{Title: "Beyond", PageNumber: 100},
	}
	res := InjectBookmarks(doc, specs, BookmarkOptions{})
	if !res.Success {
		t.Fatalf("Success = false, error %q", res.Error)
	}
	if res.BookmarkCount != 1 {
		t.Errorf("BookmarkCount = %d, want 1", res.BookmarkCount)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2 entries", res.Warnings)
	}
}

func TestInjectBookmarks_DropsChildrenOfInvalidEntry(t *testing.T) {
	doc := newTestDoc(t, 5)
	specs := []BookmarkSpec{
		{Title: "Top", PageNumber: 1, Children: []BookmarkSpec{
			{Title: "Fine", PageNumber: 2},
		}},
		{Title: "Bad", PageNumber: 50, Children: []BookmarkSpec{
			{Title: "Orphaned but valid", PageNumber: 3},
		}},
	}
	res := InjectBookmarks(doc, specs, BookmarkOptions{})
	if res.BookmarkCount != 2 {
		t.Errorf("BookmarkCount = %d, want 2 (invalid subtree dropped whole)", res.BookmarkCount)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1 entry", res.Warnings)
	}
	if res.MaxDepth != 2 {
		t.Errorf("MaxDepth = %d, want 2", res.MaxDepth)
	}
}

func TestInjectBookmarks_BuildsOutlineTree(t *testing.T) {
	doc := newTestDoc(t, 3)
	specs := []BookmarkSpec{
		{Title: "Chapter 1", PageNumber: 1, Open: true, Children: []BookmarkSpec{
			{Title: "Section 1.1", PageNumber: 2},
			{Title: "Section 1.2", PageNumber: 3},
		}},
		{Title: "Chapter 2", PageNumber: 3},
	}
	res := InjectBookmarks(doc, specs, BookmarkOptions{})
	if !res.Success || res.BookmarkCount != 4 || res.MaxDepth != 2 {
		t.Fatalf("result = %+v", res)
	}

	root := outlineRoot(t, doc)
	if tp, _ := root["Type"].(pdfobj.Name); tp != "Outlines" {
		t.Errorf("root /Type = %v", root["Type"])
	}
	if count, _ := pdfobj.Int(root["Count"]); count != 4 {
		t.Errorf("root /Count = %d, want 4 (two chapters, first expanded)", count)
	}

	first, ok := doc.ResolveDict(root["First"])
	if !ok {
		t.Fatal("root /First missing")
	}
	if got := pdfobj.DecodeTextString(first["Title"].(pdfobj.String)); got != "Chapter 1" {
		t.Errorf("first title = %q", got)
	}
	if count, _ := pdfobj.Int(first["Count"]); count != 2 {
		t.Errorf("open chapter /Count = %d, want 2", count)
	}

	dest, ok := doc.Resolve(first["Dest"]).(pdfobj.Array)
	if !ok || len(dest) != 5 {
		t.Fatalf("first /Dest = %v", first["Dest"])
	}
	if dest[0] != doc.Pages()[0] {
		t.Errorf("dest page = %v, want first page ref", dest[0])
	}
	if fit, _ := dest[1].(pdfobj.Name); fit != "XYZ" {
		t.Errorf("dest mode = %v, want /XYZ", dest[1])
	}

	second, ok := doc.ResolveDict(first["Next"])
	if !ok {
		t.Fatal("chapter chain broken: no /Next")
	}
	if got := pdfobj.DecodeTextString(second["Title"].(pdfobj.String)); got != "Chapter 2" {
		t.Errorf("second title = %q", got)
	}
	if _, hasPrev := second["Prev"]; !hasPrev {
		t.Error("second chapter missing /Prev")
	}

	// Children hang off the first chapter.
	child, ok := doc.ResolveDict(first["First"])
	if !ok {
		t.Fatal("open chapter has no /First child")
	}
	if parent, _ := child["Parent"].(pdfobj.Ref); doc.Get(parent) == nil {
		t.Error("child /Parent dangling")
	}
}

func TestInjectBookmarks_ClosedParentNegativeCount(t *testing.T) {
	doc := newTestDoc(t, 4)
	specs := []BookmarkSpec{
		{Title: "Closed", PageNumber: 1, Children: []BookmarkSpec{
			{Title: "Hidden A", PageNumber: 2},
			{Title: "Hidden B", PageNumber: 3},
		}},
	}
	if res := InjectBookmarks(doc, specs, BookmarkOptions{}); !res.Success {
		t.Fatalf("inject: %+v", res)
	}
	root := outlineRoot(t, doc)
	item, ok := doc.ResolveDict(root["First"])
	if !ok {
		t.Fatal("no first item")
	}
	if count, _ := pdfobj.Int(item["Count"]); count != -2 {
		t.Errorf("closed item /Count = %d, want -2", count)
	}
	if count, _ := pdfobj.Int(root["Count"]); count != 1 {
		t.Errorf("root /Count = %d, want 1 (children collapsed)", count)
	}
}

func TestInjectBookmarks_ReplaceWarnsAndReclaimsOldTree(t *testing.T) {
	doc := newTestDoc(t, 2)
	specs := []BookmarkSpec{{Title: "One", PageNumber: 1}, {Title: "Two", PageNumber: 2}}

	if res := InjectBookmarks(doc, specs, BookmarkOptions{}); !res.Success {
		t.Fatalf("first inject: %+v", res)
	}
	after1 := doc.NumObjects()

	res := InjectBookmarks(doc, specs, BookmarkOptions{})
	if !res.Success {
		t.Fatalf("second inject: %+v", res)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "existing bookmarks replaced") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing replacement warning, got %v", res.Warnings)
	}
	if doc.NumObjects() != after1 {
		t.Errorf("object count grew from %d to %d; old outline leaked", after1, doc.NumObjects())
	}
}

func TestInjectBookmarks_RemoveMode(t *testing.T) {
	doc := newTestDoc(t, 2)
	if res := InjectBookmarks(doc, []BookmarkSpec{{Title: "X", PageNumber: 1}}, BookmarkOptions{}); !res.Success {
		t.Fatalf("inject: %+v", res)
	}

	res := InjectBookmarks(doc, nil, BookmarkOptions{Remove: true})
	if !res.Success || res.BookmarkCount != 0 {
		t.Fatalf("remove result = %+v", res)
	}
	cat, _ := doc.Catalog()
	if _, has := cat["Outlines"]; has {
		t.Error("catalog still has /Outlines after removal")
	}
	for _, w := range res.Warnings {
		if strings.Contains(w, "replaced") {
			t.Errorf("remove mode should not warn about replacement: %v", res.Warnings)
		}
	}
}

func TestInjectBookmarks_NoPages(t *testing.T) {
	doc := pdfobj.NewDocument()
	res := InjectBookmarks(doc, []BookmarkSpec{{Title: "X", PageNumber: 1}}, BookmarkOptions{})
	if res.Success {
		t.Fatal("expected failure for a zero-page document")
	}
	if !strings.Contains(res.Error, "no pages") {
		t.Errorf("error = %q, want mention of missing pages", res.Error)
	}
}

func TestInjectBookmarks_SurvivesSaveReload(t *testing.T) {
	doc := newTestDoc(t, 2)
	specs := []BookmarkSpec{{Title: "Résumé of Findings", PageNumber: 2}}
	if res := InjectBookmarks(doc, specs, BookmarkOptions{}); !res.Success {
		t.Fatalf("inject: %+v", res)
	}

	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	again, err := pdfobj.Load(data)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	root := outlineRoot(t, again)
	item, ok := again.ResolveDict(root["First"])
	if !ok {
		t.Fatal("reloaded outline has no items")
	}
	title, _ := item["Title"].(pdfobj.String)
	if got := pdfobj.DecodeTextString(title); got != "Résumé of Findings" {
		t.Errorf("reloaded title = %q", got)
	}
}
