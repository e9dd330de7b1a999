package pdfobj

import (
	"fmt"
	"sort"
)

// Document is an in-memory PDF: the object table plus the trailer.
// Loading flattens the file's revision history (incremental updates,
// object streams) into a single table, so Save always produces one
// self-contained revision.
type Document struct {
	Version string

	objects  map[Ref]any
	refByNum map[int]Ref
	trailer  Dict
	maxNum   int

	encrypted bool
}

// Load parses a complete PDF file. It follows the cross-reference
// chain when it can and falls back to scanning the whole file for
// object headers when the chain is broken, which older authoring tools
// produce surprisingly often.
func Load(data []byte) (*Document, error) {
	version, err := parseVersion(data)
	if err != nil {
		return nil, err
	}
	d := &Document{
		Version:  version,
		objects:  map[Ref]any{},
		refByNum: map[int]Ref{},
		trailer:  Dict{},
	}

	xrefErr := d.loadViaXref(data)
	if xrefErr != nil || d.trailer["Root"] == nil {
		objects, trailer, scanErr := scanObjects(data)
		if scanErr != nil {
			if xrefErr != nil {
				return nil, fmt.Errorf("parse PDF: %w", xrefErr)
			}
			return nil, fmt.Errorf("parse PDF: %w", scanErr)
		}
		d.objects = objects
		d.trailer = trailer
		d.refByNum = map[int]Ref{}
		for ref := range objects {
			d.refByNum[ref.Num] = ref
		}
	}

	d.dropStructuralObjects()
	d.maxNum = 0
	for ref := range d.objects {
		if ref.Num > d.maxNum {
			d.maxNum = ref.Num
		}
	}
	if _, ok := d.trailer["Encrypt"]; ok {
		d.encrypted = true
	}
	if d.trailer["Root"] == nil {
		return nil, fmt.Errorf("parse PDF: no document catalog")
	}
	return d, nil
}

func (d *Document) loadViaXref(data []byte) error {
	start, err := findStartXref(data)
	if err != nil {
		return err
	}

	entries := map[int]xrefEntry{}
	merge := func(more map[int]xrefEntry) {
		for num, e := range more {
			if _, seen := entries[num]; !seen {
				entries[num] = e
			}
		}
	}

	visited := map[int64]bool{}
	pending := []int64{start}
	for len(pending) > 0 {
		off := pending[0]
		pending = pending[1:]
		if visited[off] {
			continue
		}
		visited[off] = true

		sec, trailer, err := parseXrefAt(data, off)
		if err != nil {
			return err
		}
		// Hybrid files hide objects from the table; the companion
		// stream's entries win over the table's free slots.
		if xs, ok := Int(trailer["XRefStm"]); ok && !visited[xs] {
			visited[xs] = true
			if hsec, _, err := parseXrefAt(data, xs); err == nil {
				merge(hsec)
			}
		}
		merge(sec)
		for k, v := range trailer {
			if _, seen := d.trailer[k]; !seen {
				d.trailer[k] = v
			}
		}
		if prev, ok := Int(trailer["Prev"]); ok {
			pending = append(pending, prev)
		}
	}

	lengthOf := func(r Ref) (int64, bool) {
		e, ok := entries[r.Num]
		if !ok || e.kind != 1 {
			return 0, false
		}
		return parseIntAt(data, e.offset)
	}

	// First pass: objects stored directly in the file.
	for num, e := range entries {
		if e.kind != 1 {
			continue
		}
		p := newParser(data, int(e.offset))
		ref, val, err := p.parseIndirect(lengthOf)
		if err != nil {
			continue
		}
		if ref.Num != num {
			// Entry points at the wrong object; keep what we found.
			if _, exists := d.objects[ref]; exists {
				continue
			}
		}
		d.objects[ref] = val
		d.refByNum[ref.Num] = ref
	}

	// Second pass: objects packed in object streams.
	byStm := map[int][]int{}
	for num, e := range entries {
		if e.kind == 2 {
			byStm[e.stmNum] = append(byStm[e.stmNum], num)
		}
	}
	for stmNum, wanted := range byStm {
		ref, ok := d.refByNum[stmNum]
		if !ok {
			continue
		}
		stm, ok := d.objects[ref].(*Stream)
		if !ok {
			continue
		}
		extracted, err := extractObjStm(stm)
		if err != nil {
			continue
		}
		for _, num := range wanted {
			val, ok := extracted[num]
			if !ok {
				continue
			}
			r := Ref{Num: num}
			if _, exists := d.objects[r]; exists {
				continue
			}
			d.objects[r] = val
			d.refByNum[num] = r
		}
	}

	if len(d.objects) == 0 {
		return fmt.Errorf("cross-reference chain yielded no objects")
	}
	return nil
}

// extractObjStm decodes an object stream and parses its embedded
// objects, keyed by object number.
func extractObjStm(stm *Stream) (map[int]any, error) {
	if tp, _ := stm.Dict["Type"].(Name); tp != "ObjStm" {
		return nil, fmt.Errorf("not an object stream")
	}
	raw, err := decodeStream(stm)
	if err != nil {
		return nil, err
	}
	n, ok := Int(stm.Dict["N"])
	if !ok {
		return nil, fmt.Errorf("object stream missing /N")
	}
	first, ok := Int(stm.Dict["First"])
	if !ok {
		return nil, fmt.Errorf("object stream missing /First")
	}

	type slot struct {
		num int
		off int64
	}
	hp := newParser(raw, 0)
	slots := make([]slot, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err := hp.read()
		if err != nil || numTok.kind != tokInteger {
			return nil, fmt.Errorf("malformed object stream header")
		}
		offTok, err := hp.read()
		if err != nil || offTok.kind != tokInteger {
			return nil, fmt.Errorf("malformed object stream header")
		}
		slots = append(slots, slot{num: int(numTok.i), off: offTok.i})
	}

	out := make(map[int]any, len(slots))
	for _, s := range slots {
		pos := first + s.off
		if pos < 0 || pos >= int64(len(raw)) {
			continue
		}
		vp := newParser(raw, int(pos))
		val, err := vp.parseValue()
		if err != nil {
			continue
		}
		out[s.num] = val
	}
	return out, nil
}

// dropStructuralObjects removes cross-reference streams and object
// stream containers. Their contents are already flattened into the
// table, and Save rebuilds the cross-reference section from scratch.
func (d *Document) dropStructuralObjects() {
	for ref, val := range d.objects {
		stm, ok := val.(*Stream)
		if !ok {
			continue
		}
		switch tp, _ := stm.Dict["Type"].(Name); tp {
		case "XRef", "ObjStm":
			delete(d.objects, ref)
			if d.refByNum[ref.Num] == ref {
				delete(d.refByNum, ref.Num)
			}
		}
	}
}

// Encrypted reports whether the file carries an /Encrypt dictionary.
// Encrypted documents parse but must not be rewritten.
func (d *Document) Encrypted() bool { return d.encrypted }

// Trailer returns the live trailer dictionary.
func (d *Document) Trailer() Dict { return d.trailer }

// NumObjects returns the number of live objects.
func (d *Document) NumObjects() int { return len(d.objects) }

// Refs returns every live object reference ordered by object number.
func (d *Document) Refs() []Ref {
	refs := make([]Ref, 0, len(d.objects))
	for ref := range d.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
	return refs
}

// Get returns the object stored under ref, or nil.
func (d *Document) Get(ref Ref) any { return d.objects[ref] }

// Set stores val under ref, replacing any previous object with the
// same number.
func (d *Document) Set(ref Ref, val any) {
	if old, ok := d.refByNum[ref.Num]; ok && old != ref {
		delete(d.objects, old)
	}
	d.objects[ref] = val
	d.refByNum[ref.Num] = ref
	if ref.Num > d.maxNum {
		d.maxNum = ref.Num
	}
}

// Add stores val under a fresh object number and returns its Ref.
func (d *Document) Add(val any) Ref {
	d.maxNum++
	ref := Ref{Num: d.maxNum}
	d.objects[ref] = val
	d.refByNum[ref.Num] = ref
	return ref
}

// Delete removes the object stored under ref.
func (d *Document) Delete(ref Ref) {
	delete(d.objects, ref)
	if d.refByNum[ref.Num] == ref {
		delete(d.refByNum, ref.Num)
	}
}

// Resolve follows reference chains until it reaches a direct value.
// Dangling references resolve to nil.
func (d *Document) Resolve(v any) any {
	for i := 0; i < 32; i++ {
		ref, ok := v.(Ref)
		if !ok {
			return v
		}
		next, ok := d.objects[ref]
		if !ok {
			// Generation mismatches happen; fall back to the number.
			alt, ok := d.refByNum[ref.Num]
			if !ok {
				return nil
			}
			next = d.objects[alt]
		}
		v = next
	}
	return nil
}

// ResolveDict resolves v and returns it as a dictionary. Streams
// expose their dictionary.
func (d *Document) ResolveDict(v any) (Dict, bool) {
	switch rv := d.Resolve(v).(type) {
	case Dict:
		return rv, true
	case *Stream:
		return rv.Dict, true
	}
	return nil, false
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (Dict, error) {
	cat, ok := d.ResolveDict(d.trailer["Root"])
	if !ok {
		return nil, fmt.Errorf("no document catalog")
	}
	return cat, nil
}

// CatalogRef returns the reference the trailer's /Root points at.
func (d *Document) CatalogRef() (Ref, bool) {
	ref, ok := d.trailer["Root"].(Ref)
	return ref, ok
}

// Pages returns the document's page references in reading order,
// walking the page tree depth-first. Cycles and malformed kids are
// skipped rather than reported; a structurally hopeless tree simply
// yields fewer pages.
func (d *Document) Pages() []Ref {
	cat, err := d.Catalog()
	if err != nil {
		return nil
	}
	rootRef, ok := cat["Pages"].(Ref)
	if !ok {
		return nil
	}

	var pages []Ref
	visited := map[Ref]bool{}
	var walk func(ref Ref, depth int)
	walk = func(ref Ref, depth int) {
		if depth > 64 || visited[ref] {
			return
		}
		visited[ref] = true
		node, ok := d.ResolveDict(ref)
		if !ok {
			return
		}
		kids, hasKids := d.Resolve(node["Kids"]).(Array)
		tp, _ := node["Type"].(Name)
		if tp == "Page" || (!hasKids && tp != "Pages") {
			pages = append(pages, ref)
			return
		}
		for _, kid := range kids {
			kr, ok := kid.(Ref)
			if !ok {
				continue
			}
			walk(kr, depth+1)
		}
	}
	walk(rootRef, 0)
	return pages
}

// PageCount returns the number of pages reachable from the catalog.
func (d *Document) PageCount() int { return len(d.Pages()) }
