package restable

import (
	"fmt"
	"io"
	"strings"
)

// indentUnit is the XML emitter's fixed indent width (spec.md §6).
const indentUnit = "    "

// EmitPublicXML writes values/public.xml: every spec in every main package,
// sorted ascending by numeric resource id (spec.md §4.9).
func EmitPublicXML(w io.Writer, t *Table) error {
	var specs []*ResSpec
	for _, pkg := range t.ListMainPackages() {
		specs = append(specs, pkg.ListResSpecs()...)
	}
	sortSpecsByID(specs)

	if err := writeXMLHeader(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "<resources>\n"); err != nil {
		return err
	}
	for _, s := range specs {
		if s.IsDummyResSpec() {
			continue
		}
		line := fmt.Sprintf("%s<public type=\"%s\" name=\"%s\" id=\"%s\" />\n",
			indentUnit, s.Type.Name, s.DisplayName(), s.ID.String())
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</resources>\n")
	return err
}

// EmitValuesFile writes one values-<qualifier>/<bucket>.xml document: a
// <resources> root whose children are vf's resources in declaration order,
// each serialized per its value kind (spec.md §4.9). Dummy specs are
// skipped by the caller building vf.Resources (see BuildValuesFiles).
func EmitValuesFile(w io.Writer, vf ValuesFile) error {
	if err := writeXMLHeader(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "<resources>\n"); err != nil {
		return err
	}
	for _, res := range vf.Resources {
		if err := emitResourceElement(w, res, 1); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</resources>\n")
	return err
}

// BuildValuesFiles groups every non-file resource across a package's specs
// into ValuesFile buckets keyed by (type, config), in spec-declaration
// order (spec.md §3 ValuesFile, §4.9). Dummy specs (IsDummyResSpec) are
// skipped; specs renamed as duplicates are kept.
func BuildValuesFiles(pkg *Package) []ValuesFile {
	type key struct {
		typeName string
		cfg      configKey
	}
	index := make(map[key]*ValuesFile)
	var order []key

	for _, ts := range pkg.ListTypeSpecs() {
		for _, spec := range ts.Specs {
			if spec == nil || spec.IsDummyResSpec() {
				continue
			}
			for _, res := range spec.ListResources() {
				if res.Value.Kind == ValueFile {
					continue
				}
				k := key{typeName: ts.Name, cfg: res.Config.Key()}
				vf, ok := index[k]
				if !ok {
					vf = &ValuesFile{Type: ts.Name, Config: res.Config}
					index[k] = vf
					order = append(order, k)
				}
				vf.Resources = append(vf.Resources, res)
			}
		}
	}

	out := make([]ValuesFile, 0, len(order))
	for _, k := range order {
		out = append(out, *index[k])
	}
	return out
}

func writeXMLHeader(w io.Writer) error {
	_, err := io.WriteString(w, "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	return err
}

func emitResourceElement(w io.Writer, res *Resource, depth int) error {
	indent := strings.Repeat(indentUnit, depth)
	name := res.Spec.DisplayName()
	typeName := res.Spec.Type.Name

	switch res.Value.Kind {
	case ValueBag:
		return emitBag(w, res, indent, depth, typeName, name)
	case ValueString:
		return writeSimpleElement(w, indent, "string", name, escapeText(res.Value.Str))
	case ValueColor:
		return writeSimpleElement(w, indent, "color", name, res.Value.Color)
	case ValueBool:
		return writeSimpleElement(w, indent, "bool", name, fmt.Sprintf("%t", res.Value.Bool))
	case ValueInt:
		return writeSimpleElement(w, indent, "integer", name, fmt.Sprintf("%d", res.Value.Int32))
	case ValueFloat:
		return writeSimpleElement(w, indent, "item", name, fmt.Sprintf("%g", res.Value.Float32))
	case ValueDimension:
		return writeSimpleElement(w, indent, "dimen", name, fmt.Sprintf("%g%s", res.Value.Mantissa, res.Value.Unit))
	case ValueFraction:
		return writeSimpleElement(w, indent, "item", name, fmt.Sprintf("%g%s", res.Value.Mantissa, res.Value.Unit))
	case ValueReference, ValueAttribute:
		return writeSimpleElement(w, indent, "item", name, referenceText(res.Value))
	case ValueNull:
		_, err := fmt.Fprintf(w, "%s<item type=\"%s\" name=\"%s\">@null</item>\n", indent, typeName, name)
		return err
	default:
		return writeSimpleElement(w, indent, "item", name, "")
	}
}

func writeSimpleElement(w io.Writer, indent, tag, name, body string) error {
	_, err := fmt.Fprintf(w, "%s<%s name=\"%s\">%s</%s>\n", indent, tag, name, body, tag)
	return err
}

// emitBag renders a style, array, or plurals bag, dispatched by type bucket
// name the way apktool's ResStyleValue/ResArrayValue/ResPluralsValue
// subclasses do (spec.md §4.9). Unknown bucket names fall back to a generic
// <style>, matching a bag's general (parent, ordered children) shape.
func emitBag(w io.Writer, res *Resource, indent string, depth int, typeName, name string) error {
	childIndent := strings.Repeat(indentUnit, depth+1)

	switch typeName {
	case "array":
		return emitPlainArray(w, res, indent, childIndent, "array", "item")
	case "string-array", "integer-array":
		return emitPlainArray(w, res, indent, childIndent, typeName, "item")
	case "plurals":
		if _, err := fmt.Fprintf(w, "%s<plurals name=\"%s\">\n", indent, name); err != nil {
			return err
		}
		for _, child := range res.Value.Bag {
			quantity := pluralQuantityName(child.AttributeID)
			if _, err := fmt.Fprintf(w, "%s<item quantity=\"%s\">%s</item>\n", childIndent, quantity, valueText(child.Value)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%s</plurals>\n", indent)
		return err
	default: // style
		openTag := fmt.Sprintf("%s<style name=\"%s\"", indent, name)
		if res.Value.BagParent != 0 {
			openTag += fmt.Sprintf(" parent=\"%s\"", referenceText(Value{Kind: ValueReference, RefID: res.Value.BagParent}))
		}
		if _, err := io.WriteString(w, openTag+">\n"); err != nil {
			return err
		}
		for _, child := range res.Value.Bag {
			attrName := fmt.Sprintf("0x%08x", child.AttributeID)
			if _, err := fmt.Fprintf(w, "%s<item name=\"%s\">%s</item>\n", childIndent, attrName, valueText(child.Value)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%s</style>\n", indent)
		return err
	}
}

func emitPlainArray(w io.Writer, res *Resource, indent, childIndent, tag, itemTag string) error {
	if _, err := fmt.Fprintf(w, "%s<%s name=\"%s\">\n", indent, tag, res.Spec.DisplayName()); err != nil {
		return err
	}
	for _, child := range res.Value.Bag {
		if _, err := fmt.Fprintf(w, "%s<%s>%s</%s>\n", childIndent, itemTag, valueText(child.Value), itemTag); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s</%s>\n", indent, tag)
	return err
}

// valueText renders a bag child's value as inline element text, not as its
// own element (spec.md §4.9's <item name=…> children).
func valueText(v Value) string {
	switch v.Kind {
	case ValueString:
		return escapeText(v.Str)
	case ValueColor:
		return v.Color
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValueInt:
		return fmt.Sprintf("%d", v.Int32)
	case ValueFloat:
		return fmt.Sprintf("%g", v.Float32)
	case ValueDimension, ValueFraction:
		return fmt.Sprintf("%g%s", v.Mantissa, v.Unit)
	case ValueReference, ValueAttribute:
		return referenceText(v)
	case ValueNull:
		return "@null"
	default:
		return ""
	}
}

func referenceText(v Value) string {
	sigil := "@"
	if v.Kind == ValueAttribute {
		sigil = "?"
	}
	if v.RefID == 0 {
		return sigil + "null"
	}
	return fmt.Sprintf("%s0x%08x", sigil, v.RefID)
}

// pluralQuantityName maps the android CC-style plural attribute ids onto
// their quantity names. These six ids are the only ones aapt emits for
// <plurals>; anything else falls back to its hex form.
func pluralQuantityName(attrID uint32) string {
	switch attrID {
	case 0x01010024:
		return "zero"
	case 0x01010025:
		return "one"
	case 0x01010026:
		return "two"
	case 0x01010027:
		return "few"
	case 0x01010028:
		return "many"
	case 0x01010029:
		return "other"
	default:
		return fmt.Sprintf("0x%08x", attrID)
	}
}

// escapeText escapes the handful of characters that must never appear raw
// in XML text content (&, <, >) while deliberately leaving `"` alone
// (spec.md §6). Resource names already display `"` as `q` (see
// ResSpec.DisplayName); string values are not transformed, so a `"` in a
// value is written out unescaped.
func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
