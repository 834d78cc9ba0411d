package field

import (
	"strings"
)

func indentFor(f Field) string {
	return strings.Repeat("  ", f.base().depth)
}

func writeNamed(b *strings.Builder, name string, f Field) {
	b.WriteString(indentFor(f))
	b.WriteString(":")
	b.WriteString(name)
	b.WriteString(":")

	switch x := f.(type) {
	case *SimpleField:
		if v := x.String(); v != "" {
			b.WriteString(" ")
			b.WriteString(v)
		}
		b.WriteString("\n")
	case *ObjectField:
		b.WriteString("\n")
		for _, child := range x.fields.Names() {
			cf, _ := x.fields.Get(child)
			writeNamed(b, child, cf)
		}
	case *ListField:
		b.WriteString("\n")
		writeItems(b, x)
	}
}

func writeItems(b *strings.Builder, lf *ListField) {
	for _, item := range lf.items {
		b.WriteString(indentFor(item))
		b.WriteString("*")
		switch x := item.(type) {
		case *SimpleField:
			if v := x.String(); v != "" {
				b.WriteString(" ")
				b.WriteString(v)
			}
			b.WriteString("\n")
		case *ObjectField:
			b.WriteString("\n")
			for _, child := range x.fields.Names() {
				cf, _ := x.fields.Get(child)
				writeNamed(b, child, cf)
			}
		case *ListField:
			b.WriteString("\n")
			writeItems(b, x)
		}
	}
}

func renderList(lf *ListField) string {
	var b strings.Builder
	writeItems(&b, lf)
	return strings.TrimRight(b.String(), "\n")
}
