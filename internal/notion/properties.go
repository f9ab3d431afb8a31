package notion

import (
	"strconv"
	"strings"
	"time"

	napi "github.com/jomei/notionapi"

	"github.com/rowkeeper/dbsync/internal/engine"
)

// encodeList and decodeList implement §4.4's multi-valued cell encoding:
// values are joined with ", " (comma-space). A literal backslash or comma
// inside a value is backslash-escaped first, so decodeList can walk the
// string byte-by-byte and tell an escaped comma from a real separator —
// doubling the comma alone (the prior scheme) does not work, since a
// doubled comma still contains the ", " separator as a substring and
// splitting on it cuts the value in half.
func encodeList(items []string) string {
	escaped := make([]string, len(items))
	for i, it := range items {
		escaped[i] = escapeListItem(it)
	}

	return strings.Join(escaped, ", ")
}

func decodeList(s string) []string {
	if s == "" {
		return nil
	}

	var out []string

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i++
		case s[i] == ',' && i+1 < len(s) && s[i+1] == ' ':
			out = append(out, b.String())
			b.Reset()
			i++
		default:
			b.WriteByte(s[i])
		}
	}

	out = append(out, b.String())

	return out
}

func escapeListItem(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ",", `\,`)

	return s
}

func richText(text string) []napi.RichText {
	if text == "" {
		return nil
	}

	return []napi.RichText{{Type: napi.ObjectTypeText, Text: &napi.Text{Content: text}, PlainText: text}}
}

func plainTextOf(rt []napi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		b.WriteString(r.PlainText)
	}

	return b.String()
}

// propertyKind maps a remote property config to a canonical ColumnKind.
func propertyKind(cfg napi.PropertyConfig) engine.ColumnKind {
	switch cfg.GetType() {
	case napi.PropertyConfigTypeTitle:
		return engine.KindTitle
	case napi.PropertyConfigTypeRichText:
		return engine.KindText
	case napi.PropertyConfigTypeNumber:
		return engine.KindNumber
	case napi.PropertyConfigTypeCheckbox:
		return engine.KindCheckbox
	case napi.PropertyConfigTypeDate:
		return engine.KindDate
	case napi.PropertyConfigTypeSelect:
		return engine.KindSingleSelect
	case napi.PropertyConfigTypeMultiSelect:
		return engine.KindMultiSelect
	case napi.PropertyConfigTypeURL:
		return engine.KindURL
	case napi.PropertyConfigTypeEmail:
		return engine.KindEmail
	case napi.PropertyConfigTypePhoneNumber:
		return engine.KindPhone
	case napi.PropertyConfigTypeStatus:
		return engine.KindStatus
	case napi.PropertyConfigTypeRelation:
		return engine.KindRelation
	case napi.PropertyConfigTypePeople:
		return engine.KindPeople
	case napi.PropertyConfigTypeFiles:
		return engine.KindFiles
	case napi.PropertyConfigTypeFormula:
		return engine.KindFormula
	case napi.PropertyConfigTypeRollup:
		return engine.KindRollup
	case napi.PropertyConfigTypeCreatedTime:
		return engine.KindCreatedTime
	case napi.PropertyConfigTypeLastEditedTime:
		return engine.KindLastEditedTime
	case napi.PropertyConfigTypeCreatedBy:
		return engine.KindCreatedBy
	case napi.PropertyConfigTypeLastEditedBy:
		return engine.KindLastEditedBy
	default:
		return engine.KindText
	}
}

func propertyOptions(cfg napi.PropertyConfig) []string {
	switch c := cfg.(type) {
	case *napi.SelectPropertyConfig:
		return optionNames(c.Select.Options)
	case *napi.MultiSelectPropertyConfig:
		return optionNames(c.MultiSelect.Options)
	case *napi.StatusPropertyConfig:
		return optionNames(c.Status.Options)
	default:
		return nil
	}
}

func optionNames(opts []napi.Option) []string {
	names := make([]string, len(opts))
	for i, o := range opts {
		names[i] = o.Name
	}

	return names
}

// schemaToColumns translates a database's remote property config map into
// canonical columns. db.Properties is a map, so the order of the returned
// columns is not defined and does not follow the remote display order.
func schemaToColumns(db *napi.Database) []engine.Column {
	cols := make([]engine.Column, 0, len(db.Properties))

	for name, cfg := range db.Properties {
		cols = append(cols, engine.Column{
			Name:    name,
			Kind:    propertyKind(cfg),
			Options: propertyOptions(cfg),
		})
	}

	return cols
}

// valuesToCells converts a page's property values to canonical cells, one
// per property present on the page, keyed by property name. No property
// is skipped; it is not filtered against the table's declared columns.
func valuesToCells(props napi.Properties) map[string]engine.Cell {
	cells := make(map[string]engine.Cell, len(props))

	for name, prop := range props {
		cells[name] = valueToCell(prop)
	}

	return cells
}

func valueToCell(prop napi.Property) engine.Cell {
	switch p := prop.(type) {
	case *napi.TitleProperty:
		return cellFromString(plainTextOf(p.Title))
	case *napi.RichTextProperty:
		return cellFromString(plainTextOf(p.RichText))
	case *napi.NumberProperty:
		return cellFromString(strconv.FormatFloat(p.Number, 'f', -1, 64))
	case *napi.CheckboxProperty:
		return cellFromString(strconv.FormatBool(p.Checkbox))
	case *napi.DateProperty:
		if p.Date == nil || p.Date.Start == nil {
			return engine.Cell{Blank: true}
		}

		return cellFromString(time.Time(*p.Date.Start).Format(time.RFC3339))
	case *napi.URLProperty:
		return cellFromString(p.URL)
	case *napi.EmailProperty:
		return cellFromString(p.Email)
	case *napi.PhoneNumberProperty:
		return cellFromString(p.PhoneNumber)
	case *napi.SelectProperty:
		return cellFromString(p.Select.Name)
	case *napi.MultiSelectProperty:
		return cellFromString(encodeList(optionNames(p.MultiSelect)))
	case *napi.StatusProperty:
		return cellFromString(p.Status.Name)
	case *napi.RelationProperty:
		ids := make([]string, len(p.Relation))
		for i, r := range p.Relation {
			ids[i] = r.ID.String()
		}

		return cellFromString(encodeList(ids))
	case *napi.PeopleProperty:
		names := make([]string, len(p.People))
		for i, u := range p.People {
			if u.Name != "" {
				names[i] = u.Name
			} else {
				names[i] = u.ID.String()
			}
		}

		return cellFromString(encodeList(names))
	case *napi.FilesProperty:
		urls := make([]string, 0, len(p.Files))
		for _, f := range p.Files {
			if f.External != nil {
				urls = append(urls, f.External.URL)
			} else if f.File != nil {
				urls = append(urls, f.File.URL)
			}
		}

		return cellFromString(encodeList(urls))
	case *napi.FormulaProperty:
		return cellFromString(formulaResultString(p.Formula))
	case *napi.RollupProperty:
		return cellFromString(rollupResultString(p.Rollup))
	case *napi.CreatedTimeProperty:
		return cellFromString(p.CreatedTime)
	case *napi.LastEditedTimeProperty:
		return cellFromString(p.LastEditedTime)
	case *napi.CreatedByProperty:
		return cellFromString(p.CreatedBy.Name)
	case *napi.LastEditedByProperty:
		return cellFromString(p.LastEditedBy.Name)
	default:
		return engine.Cell{Blank: true}
	}
}

func cellFromString(s string) engine.Cell {
	if s == "" {
		return engine.Cell{Blank: true}
	}

	return engine.Cell{Value: s}
}

func formulaResultString(f napi.Formula) string {
	switch f.Type {
	case "string":
		return f.String
	case "number":
		return strconv.FormatFloat(f.Number, 'f', -1, 64)
	case "boolean":
		return strconv.FormatBool(f.Boolean)
	default:
		return ""
	}
}

func rollupResultString(r napi.Rollup) string {
	switch r.Type {
	case "number":
		return strconv.FormatFloat(r.Number, 'f', -1, 64)
	case "array":
		parts := make([]string, 0, len(r.Array))
		for _, p := range r.Array {
			parts = append(parts, valueToCell(p).Value)
		}

		return encodeList(parts)
	default:
		return ""
	}
}

// cellsToProperties builds a write payload for the writable subset of
// columns (§4.5 step 5): read-only kinds are never included, matching
// ColumnKind.ReadOnly.
func cellsToProperties(values map[string]engine.Cell, columns []engine.Column) napi.Properties {
	out := make(napi.Properties, len(values))

	byName := make(map[string]engine.Column, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}

	for name, cell := range values {
		col, ok := byName[name]
		if !ok || col.Kind.ReadOnly() {
			continue
		}

		if prop := cellToProperty(col, cell); prop != nil {
			out[name] = prop
		}
	}

	return out
}

func cellToProperty(col engine.Column, cell engine.Cell) napi.Property {
	if cell.Blank {
		return blankProperty(col.Kind)
	}

	switch col.Kind {
	case engine.KindTitle:
		return &napi.TitleProperty{Title: richText(cell.Value)}
	case engine.KindText:
		return &napi.RichTextProperty{RichText: richText(cell.Value)}
	case engine.KindNumber:
		n, err := strconv.ParseFloat(cell.Value, 64)
		if err != nil {
			return nil
		}

		return &napi.NumberProperty{Number: n}
	case engine.KindCheckbox:
		b, err := strconv.ParseBool(cell.Value)
		if err != nil {
			return nil
		}

		return &napi.CheckboxProperty{Checkbox: b}
	case engine.KindDate:
		t, err := time.Parse(time.RFC3339, cell.Value)
		if err != nil {
			t, err = time.Parse("2006-01-02", cell.Value)
			if err != nil {
				return nil
			}
		}

		d := napi.Date(t)

		return &napi.DateProperty{Date: &napi.DateObject{Start: &d}}
	case engine.KindURL:
		return &napi.URLProperty{URL: cell.Value}
	case engine.KindEmail:
		return &napi.EmailProperty{Email: cell.Value}
	case engine.KindPhone:
		return &napi.PhoneNumberProperty{PhoneNumber: cell.Value}
	case engine.KindSingleSelect:
		return &napi.SelectProperty{Select: napi.Option{Name: cell.Value}}
	case engine.KindStatus:
		return &napi.StatusProperty{Status: napi.Option{Name: cell.Value}}
	case engine.KindMultiSelect:
		names := decodeList(cell.Value)
		opts := make([]napi.Option, len(names))

		for i, n := range names {
			opts[i] = napi.Option{Name: n}
		}

		return &napi.MultiSelectProperty{MultiSelect: opts}
	case engine.KindRelation:
		ids := decodeList(cell.Value)
		rel := make([]napi.Relation, len(ids))

		for i, id := range ids {
			rel[i] = napi.Relation{ID: napi.PageID(id)}
		}

		return &napi.RelationProperty{Relation: rel}
	case engine.KindFiles:
		names := decodeList(cell.Value)
		files := make([]napi.File, len(names))

		for i, u := range names {
			files[i] = napi.File{Name: u, Type: napi.FileTypeExternal, External: &napi.FileObject{URL: u}}
		}

		return &napi.FilesProperty{Files: files}
	default:
		return nil
	}
}

func blankProperty(kind engine.ColumnKind) napi.Property {
	switch kind {
	case engine.KindTitle:
		return &napi.TitleProperty{Title: nil}
	case engine.KindText:
		return &napi.RichTextProperty{RichText: nil}
	case engine.KindDate:
		return &napi.DateProperty{Date: nil}
	case engine.KindURL:
		return &napi.URLProperty{URL: ""}
	case engine.KindEmail:
		return &napi.EmailProperty{Email: ""}
	case engine.KindPhone:
		return &napi.PhoneNumberProperty{PhoneNumber: ""}
	case engine.KindMultiSelect:
		return &napi.MultiSelectProperty{MultiSelect: nil}
	case engine.KindRelation:
		return &napi.RelationProperty{Relation: nil}
	case engine.KindFiles:
		return &napi.FilesProperty{Files: nil}
	default:
		return nil
	}
}

// schemaConfigForColumn builds the property config the remote store needs
// to create a new column (§4.3 table -> remote additions).
func schemaConfigForColumn(col engine.Column) napi.PropertyConfig {
	switch col.Kind {
	case engine.KindText:
		return napi.RichTextPropertyConfig{Type: napi.PropertyConfigTypeRichText}
	case engine.KindNumber:
		return napi.NumberPropertyConfig{Type: napi.PropertyConfigTypeNumber, Format: napi.FormatNumber}
	case engine.KindCheckbox:
		return napi.CheckboxPropertyConfig{Type: napi.PropertyConfigTypeCheckbox}
	case engine.KindDate:
		return napi.DatePropertyConfig{Type: napi.PropertyConfigTypeDate}
	case engine.KindURL:
		return napi.URLPropertyConfig{Type: napi.PropertyConfigTypeURL}
	case engine.KindEmail:
		return napi.EmailPropertyConfig{Type: napi.PropertyConfigTypeEmail}
	case engine.KindPhone:
		return napi.PhoneNumberPropertyConfig{Type: napi.PropertyConfigTypePhoneNumber}
	case engine.KindSingleSelect:
		return napi.SelectPropertyConfig{Type: napi.PropertyConfigTypeSelect, Select: napi.Select{Options: optionsFrom(col.Options)}}
	case engine.KindMultiSelect:
		return napi.MultiSelectPropertyConfig{Type: napi.PropertyConfigTypeMultiSelect, MultiSelect: napi.Select{Options: optionsFrom(col.Options)}}
	case engine.KindStatus:
		return napi.StatusPropertyConfig{Type: napi.PropertyConfigTypeStatus, Status: napi.Status{Options: optionsFrom(col.Options)}}
	case engine.KindPeople:
		return napi.PeoplePropertyConfig{Type: napi.PropertyConfigTypePeople}
	case engine.KindFiles:
		return napi.FilesPropertyConfig{Type: napi.PropertyConfigTypeFiles}
	default:
		return napi.RichTextPropertyConfig{Type: napi.PropertyConfigTypeRichText}
	}
}

func optionsFrom(names []string) []napi.Option {
	opts := make([]napi.Option, len(names))
	for i, n := range names {
		opts[i] = napi.Option{Name: n}
	}

	return opts
}
