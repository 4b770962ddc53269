package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".xlsx")
}

// Read extracts the selected sheet. An empty sheet name with SheetIndex <= 0
// selects the first sheet; SheetIndex is 1-based.
func (xlsxReader) Read(p string, opt Options) (*Table, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()

	wb, err := readWorkbook(&zr.Reader)
	if err != nil {
		return nil, err
	}
	sheet, target, err := wb.resolve(opt.Sheet, opt.SheetIndex)
	if err != nil {
		return nil, fmt.Errorf("%w in workbook '%s'", err, filepath.Base(p))
	}
	data, err := readZipFile(&zr.Reader, target)
	if err != nil {
		return nil, err
	}
	shared, err := readSharedStrings(&zr.Reader)
	if err != nil {
		return nil, err
	}

	rr := &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
	header, ok := rr.Next()
	if !ok {
		return &Table{Sheet: sheet}, nil
	}
	tab := &Table{Header: header, Sheet: sheet}
	for {
		rec, ok := rr.Next()
		if !ok {
			break
		}
		tab.Total++
		if opt.MaxRows > 0 && len(tab.Records) >= opt.MaxRows {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		tab.Records = append(tab.Records, row)
	}
	if rr.err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, rr.err)
	}
	return tab, nil
}

type workbook struct {
	Sheets []struct {
		Name    string `xml:"name,attr"`
		SheetID int    `xml:"sheetId,attr"`
		RID     string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
	rels map[string]string
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func readWorkbook(zr *zip.Reader) (*workbook, error) {
	data, err := readZipFile(zr, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	var wb workbook
	if err := xml.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("parse workbook: %w", err)
	}
	wb.rels = map[string]string{}
	if data, err := readZipFile(zr, "xl/_rels/workbook.xml.rels"); err == nil {
		var rels relationships
		if err := xml.Unmarshal(data, &rels); err != nil {
			return nil, fmt.Errorf("parse workbook relationships: %w", err)
		}
		for _, r := range rels.Items {
			wb.rels[r.ID] = r.Target
		}
	}
	return &wb, nil
}

// resolve returns the sheet name and its ZIP path.
func (wb *workbook) resolve(name string, index int) (string, string, error) {
	if name != "" {
		for _, s := range wb.Sheets {
			if strings.EqualFold(s.Name, name) {
				if rel, ok := wb.rels[s.RID]; ok {
					return s.Name, normalizeRelPath(rel), nil
				}
			}
		}
		avail := make([]string, len(wb.Sheets))
		for i, s := range wb.Sheets {
			avail[i] = s.Name
		}
		return "", "", fmt.Errorf("sheet '%s' not found (available sheets: %s)", name, strings.Join(avail, ", "))
	}
	if index <= 0 {
		index = 1
	}
	for _, s := range wb.Sheets {
		if s.SheetID == index {
			if rel, ok := wb.rels[s.RID]; ok {
				return s.Name, normalizeRelPath(rel), nil
			}
		}
	}
	return fmt.Sprintf("Sheet%d", index), path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", index)), nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("xlsx entry %s not found", name)
}

// readSharedStrings concatenates every <t> run of each <si> item.
func readSharedStrings(zr *zip.Reader) ([]string, error) {
	data, err := readZipFile(zr, "xl/sharedStrings.xml")
	if err != nil {
		// workbooks with only inline strings omit the part
		return nil, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	inT := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse shared strings: %w", err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

// sheetRowReader streams rows of a worksheet, placing each cell by its
// reference so sparse rows keep their columns.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
	err    error
}

func (r *sheetRowReader) Next() ([]string, bool) {
	var row []string
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if err != io.EOF {
				r.err = err
			}
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch {
			case se.Name.Local == "row":
				inRow = true
				row = nil
			case inRow && se.Name.Local == "c":
				var ref, typ string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				idx := colIndexFromRef(ref)
				if idx < 0 {
					idx = len(row)
				}
				for len(row) <= idx {
					row = append(row, "")
				}
				row[idx] = r.cellValue(typ)
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				return row, true
			}
		}
	}
}

// cellValue reads up to the closing </c>, capturing <v> or inline <t>.
func (r *sheetRowReader) cellValue(typ string) string {
	var val strings.Builder
	capture := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			r.err = err
			return val.String()
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				capture = true
			}
		case xml.CharData:
			if capture {
				val.Write(se)
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "v", "t":
				capture = false
			case "c":
				s := val.String()
				if typ == "s" {
					i := atoiSafe(s)
					if i >= 0 && i < len(r.shared) {
						return r.shared[i]
					}
					return ""
				}
				if typ == "b" {
					if s == "1" {
						return "true"
					}
					return "false"
				}
				return s
			}
		}
	}
}

// colIndexFromRef maps "C12" to 2. A missing reference yields -1.
func colIndexFromRef(ref string) int {
	idx := 0
	i := 0
	for ; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship targets to ZIP entry names.
// Targets may be absolute ("/xl/worksheets/sheet1.xml") or relative to xl/.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
