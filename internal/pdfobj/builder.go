package pdfobj

import "fmt"

// NewDocument returns an empty single-revision document containing a
// catalog and an empty page tree.
func NewDocument() *Document {
	d := &Document{
		Version:  "1.4",
		objects:  map[Ref]any{},
		refByNum: map[int]Ref{},
		trailer:  Dict{},
	}
	pages := d.Add(Dict{"Type": Name("Pages"), "Kids": Array{}, "Count": int64(0)})
	root := d.Add(Dict{"Type": Name("Catalog"), "Pages": pages})
	d.trailer["Root"] = root
	return d
}

// AppendPage adds a page with the given media box and content stream
// to the end of the page tree and returns its reference.
func (d *Document) AppendPage(width, height float64, content []byte, resources Dict) (Ref, error) {
	cat, err := d.Catalog()
	if err != nil {
		return Ref{}, err
	}
	pagesRef, ok := cat["Pages"].(Ref)
	if !ok {
		return Ref{}, fmt.Errorf("catalog has no page tree")
	}
	pagesNode, ok := d.ResolveDict(pagesRef)
	if !ok {
		return Ref{}, fmt.Errorf("page tree root missing")
	}

	contentRef := d.Add(&Stream{Dict: Dict{}, Data: content})
	page := Dict{
		"Type":     Name("Page"),
		"Parent":   pagesRef,
		"MediaBox": Array{int64(0), int64(0), width, height},
		"Contents": contentRef,
	}
	if resources != nil {
		page["Resources"] = resources
	}
	ref := d.Add(page)

	kids, _ := pagesNode["Kids"].(Array)
	pagesNode["Kids"] = append(kids, ref)
	count, _ := Int(pagesNode["Count"])
	pagesNode["Count"] = count + 1
	return ref, nil
}

// StandardFont returns a font dictionary for one of the base fonts
// every reader ships, e.g. Helvetica or Helvetica-Bold.
func StandardFont(base Name) Dict {
	return Dict{
		"Type":     Name("Font"),
		"Subtype":  Name("Type1"),
		"BaseFont": base,
		"Encoding": Name("WinAnsiEncoding"),
	}
}
