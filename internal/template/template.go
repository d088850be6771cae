// Package template holds the ordered field template that drives extraction
// prompts and export row order.
package template

import (
	_ "embed"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/statement-cli/internal/model"
)

//go:embed fields.yaml
var defaultYAML []byte

// Field is one template row.
type Field struct {
	Category    string              `yaml:"category"`
	Subcategory string              `yaml:"subcategory"`
	Name        string              `yaml:"field"`
	Statement   model.StatementType `yaml:"statement"`
	Aliases     []string            `yaml:"aliases"`
}

type file struct {
	Fields []Field `yaml:"fields"`
}

// Template is an ordered, immutable list of fields with a lookup index over
// canonical names and aliases.
type Template struct {
	fields []Field
	index  map[string]int
}

// Key returns the comparison key for a field label: NFKC normalized, case
// folded, "&" spelled out, punctuation dropped and whitespace collapsed.
func Key(name string) string {
	s := norm.NFKC.String(name)
	s = cases.Fold().String(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var sb strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(r)
		default:
			space = true
		}
	}
	return sb.String()
}

// Default returns the embedded template.
func Default() *Template {
	t, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a template from a YAML file. An empty path returns Default.
func Load(path string) (*Template, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "template: read %s", path)
	}
	return Parse(data)
}

// Parse builds a template from YAML. Field names must be unique and every
// statement must be one of the four financial statement types.
func Parse(data []byte) (*Template, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "template: parse yaml")
	}
	if len(f.Fields) == 0 {
		return nil, eris.New("template: no fields")
	}

	t := &Template{
		fields: f.Fields,
		index:  make(map[string]int, len(f.Fields)*2),
	}
	for i, fd := range f.Fields {
		if strings.TrimSpace(fd.Name) == "" {
			return nil, eris.Errorf("template: field %d has no name", i+1)
		}
		if !fd.Statement.IsFinancial() {
			return nil, eris.Errorf("template: field %q has invalid statement %q", fd.Name, fd.Statement)
		}
		k := Key(fd.Name)
		if _, dup := t.index[k]; dup {
			return nil, eris.Errorf("template: duplicate field %q", fd.Name)
		}
		t.index[k] = i
	}
	// Aliases never shadow a canonical name.
	for i, fd := range f.Fields {
		for _, a := range fd.Aliases {
			if _, taken := t.index[Key(a)]; !taken {
				t.index[Key(a)] = i
			}
		}
	}
	return t, nil
}

// Fields returns the template rows in order.
func (t *Template) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Len returns the number of template rows.
func (t *Template) Len() int { return len(t.fields) }

// Lookup finds the template field for a label, matching canonical names and
// aliases by Key.
func (t *Template) Lookup(name string) (Field, bool) {
	i, ok := t.index[Key(name)]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// Canonical returns the template name for a label, or the trimmed label when
// it matches no template field.
func (t *Template) Canonical(name string) string {
	if f, ok := t.Lookup(name); ok {
		return f.Name
	}
	return strings.Join(strings.Fields(name), " ")
}

// ForStatement returns the canonical field names for one statement type,
// in template order.
func (t *Template) ForStatement(st model.StatementType) []string {
	var names []string
	for _, f := range t.fields {
		if f.Statement == st {
			names = append(names, f.Name)
		}
	}
	return names
}

// Extras returns names that are not template fields, sorted.
func (t *Template) Extras(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := t.Lookup(n); !ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
