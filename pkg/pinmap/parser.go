package pinmap

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
)

var parser = participle.MustBuild[File](
	participle.Lexer(Lexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// Parse reads a wiring file from r and returns its validated Map. name is
// used in error positions.
func Parse(name string, r io.Reader) (*Map, error) {
	f, err := parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("pinmap: %w", err)
	}
	return build(f)
}

// ParseString parses a wiring file held in s.
func ParseString(name, s string) (*Map, error) {
	return Parse(name, strings.NewReader(s))
}

// ParseFile parses the wiring file at path.
func ParseFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pinmap: %w", err)
	}
	defer f.Close()

	return Parse(path, f)
}

// build converts the syntax tree into a Map, rejecting repeated declarations
// and range labels that disagree with the number of lines listed.
func build(f *File) (*Map, error) {
	m := &Map{}
	seen := make(map[string]bool)
	for _, st := range f.Statements {
		var key string
		switch {
		case st.Chip != nil:
			key = "chip"
			m.Chip = st.Chip.Name
		case st.Bus != nil:
			key = strings.ToLower(st.Bus.Kind)
			if err := checkRange(st.Bus); err != nil {
				return nil, fmt.Errorf("pinmap: %s: %w", st.Pos, err)
			}
			if key == "address" {
				m.Address = st.Bus.Lines
			} else {
				m.Data = st.Bus.Lines
			}
		case st.Control != nil:
			key = strings.ToLower(st.Control.Signal)
			switch key {
			case "ce":
				m.ChipEnable = st.Control.Line
			case "oe":
				m.OutputEnable = st.Control.Line
			case "we":
				m.WriteEnable = st.Control.Line
			}
		}
		if seen[key] {
			return nil, fmt.Errorf("pinmap: %s: %s declared twice", st.Pos, key)
		}
		seen[key] = true
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// checkRange verifies that "A0..A14" style labels start at bit 0, carry the
// group's prefix and cover exactly the listed lines.
func checkRange(d *BusDecl) error {
	prefix := "A"
	if strings.EqualFold(d.Kind, "data") {
		prefix = "D"
	}
	first, err := rangeIndex(prefix, d.First)
	if err != nil {
		return err
	}
	last, err := rangeIndex(prefix, d.Last)
	if err != nil {
		return err
	}
	if first != 0 {
		return fmt.Errorf("%s range must start at %s0, got %s", d.Kind, prefix, d.First)
	}
	if want := last - first + 1; want != len(d.Lines) {
		return fmt.Errorf("%s range %s..%s names %d lines, %d given", d.Kind, d.First, d.Last, want, len(d.Lines))
	}
	return nil
}

func rangeIndex(prefix, label string) (int, error) {
	if len(label) < 2 || !strings.EqualFold(label[:1], prefix) {
		return 0, fmt.Errorf("range label %q must look like %s<n>", label, prefix)
	}
	n, err := strconv.Atoi(label[1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("range label %q must look like %s<n>", label, prefix)
	}
	return n, nil
}
