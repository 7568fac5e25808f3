package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed definitions.yml
var defaultDefinitions []byte

// ErrUnknownField is returned when a field name is not in the registry
var ErrUnknownField = errors.New("unknown summary field")

// Registry is an ordered, read-only set of summary field definitions
type Registry struct {
	subject   Subject
	groups    map[string]map[string]string
	tables    map[string]TableOverride
	fields    []*Field
	index     map[string]*Field
	optgroups []*OptGroup
	optIndex  map[string]*OptGroup
}

// document mirrors the on-disk layout of a definitions file
type document struct {
	Subject   *Subject                     `yaml:"subject"`
	Groups    map[string]map[string]string `yaml:"groups"`
	Tables    map[string]TableOverride     `yaml:"tables"`
	Fields    orderedFields                `yaml:"fields"`
	OptGroups orderedOptGroups             `yaml:"optgroups"`
}

// orderedFields keeps fields in declaration order
type orderedFields []*Field

func (o *orderedFields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		f := &Field{}
		if err := node.Content[i+1].Decode(f); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		f.Name = name
		*o = append(*o, f)
	}
	return nil
}

// orderedOptGroups keeps categories in declaration order
type orderedOptGroups []*OptGroup

func (o *orderedOptGroups) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: optgroups must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		g := &OptGroup{}
		if err := node.Content[i+1].Decode(g); err != nil {
			return fmt.Errorf("optgroup %s: %w", name, err)
		}
		g.Name = name
		*o = append(*o, g)
	}
	return nil
}

// Load returns the built-in summary field definitions
func Load() (*Registry, error) {
	r, err := Parse(defaultDefinitions)
	if err != nil {
		return nil, err
	}
	if err := r.resolve(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustLoad is like Load but panics on error. The definitions are compiled
// into the binary, so an error here can only come from a bad build.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// LoadFile reads extension definitions from a YAML file
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse builds a registry from YAML definitions. Ratio fields are left
// unresolved until the registry is loaded or merged, so extension files
// can build ratios over built-in fields.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	r := newRegistry()
	if doc.Subject != nil {
		r.subject = *doc.Subject
	}
	for name, attrs := range doc.Groups {
		r.groups[name] = attrs
	}
	for name, t := range doc.Tables {
		r.tables[name] = t
	}
	for _, f := range doc.Fields {
		if _, dup := r.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %s", f.Name)
		}
		r.addField(f)
	}
	for _, g := range doc.OptGroups {
		r.addOptGroup(g)
	}
	return r, nil
}

func newRegistry() *Registry {
	return &Registry{
		groups:   make(map[string]map[string]string),
		tables:   make(map[string]TableOverride),
		index:    make(map[string]*Field),
		optIndex: make(map[string]*OptGroup),
	}
}

func (r *Registry) addField(f *Field) {
	if existing, ok := r.index[f.Name]; ok {
		*existing = *f
		return
	}
	r.fields = append(r.fields, f)
	r.index[f.Name] = f
}

func (r *Registry) addOptGroup(g *OptGroup) {
	if existing, ok := r.optIndex[g.Name]; ok {
		*existing = *g
		return
	}
	r.optgroups = append(r.optgroups, g)
	r.optIndex[g.Name] = g
}

// resolve fills in derived templates
func (r *Registry) resolve() error {
	for _, f := range r.fields {
		if f.Ratio == nil {
			continue
		}
		num, ok := r.index[f.Ratio.Numerator]
		if !ok {
			return fmt.Errorf("field %s: ratio numerator %q: %w", f.Name, f.Ratio.Numerator, ErrUnknownField)
		}
		den, ok := r.index[f.Ratio.Denominator]
		if !ok {
			return fmt.Errorf("field %s: ratio denominator %q: %w", f.Name, f.Ratio.Denominator, ErrUnknownField)
		}
		if num.Ratio != nil || den.Ratio != nil {
			return fmt.Errorf("field %s: ratio operands must not be ratios", f.Name)
		}
		f.TriggerSQL = Ratio(num.TriggerSQL, den.TriggerSQL)
	}
	return nil
}

// clone returns a deep copy that can be modified freely
func (r *Registry) clone() *Registry {
	c := newRegistry()
	c.subject = r.subject
	c.subject.DirectTables = append([]string(nil), r.subject.DirectTables...)
	for name, attrs := range r.groups {
		cp := make(map[string]string, len(attrs))
		for k, v := range attrs {
			cp[k] = v
		}
		c.groups[name] = cp
	}
	for name, t := range r.tables {
		c.tables[name] = t
	}
	for _, f := range r.fields {
		cp := *f
		if f.Ratio != nil {
			ratio := *f.Ratio
			cp.Ratio = &ratio
		}
		c.addField(&cp)
	}
	for _, g := range r.optgroups {
		cp := *g
		c.addOptGroup(&cp)
	}
	return c
}

// Merge layers other over r and returns the combined registry. Fields,
// tables, groups and categories in other replace those with the same key;
// new fields are appended in other's order.
func (r *Registry) Merge(other *Registry) (*Registry, error) {
	m := r.clone()
	if other == nil {
		return m, nil
	}

	if other.subject.Entity != "" {
		m.subject.Entity = other.subject.Entity
	}
	if other.subject.Table != "" {
		m.subject.Table = other.subject.Table
	}
	if other.subject.Key != "" {
		m.subject.Key = other.subject.Key
	}
	for _, t := range other.subject.DirectTables {
		if !m.subject.References(t) {
			m.subject.DirectTables = append(m.subject.DirectTables, t)
		}
	}
	for name, attrs := range other.groups {
		m.groups[name] = attrs
	}
	for name, t := range other.tables {
		m.tables[name] = t
	}
	for _, f := range other.fields {
		cp := *f
		m.addField(&cp)
	}
	for _, g := range other.optgroups {
		cp := *g
		m.addOptGroup(&cp)
	}

	if err := m.resolve(); err != nil {
		return nil, err
	}
	return m, nil
}

// Filter returns the registry restricted to the named fields whose category
// belongs to an enabled component. An empty active list keeps every field;
// a nil components list skips the component check.
func (r *Registry) Filter(active []string, components []string) (*Registry, error) {
	keep := make(map[string]bool, len(active))
	for _, name := range active {
		if _, ok := r.index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		keep[name] = true
	}

	var enabled map[string]bool
	if components != nil {
		enabled = make(map[string]bool, len(components))
		for _, c := range components {
			enabled[c] = true
		}
	}

	out := r.clone()
	all := out.fields
	out.fields = nil
	out.index = make(map[string]*Field)
	for _, f := range all {
		if len(keep) > 0 && !keep[f.Name] {
			continue
		}
		if enabled != nil {
			if g, ok := r.optIndex[f.OptGroup]; ok && g.Component != "" && !enabled[g.Component] {
				continue
			}
		}
		out.addField(f)
	}
	return out, nil
}

// localizedTables are the tables whose text columns live in per-locale
// views on a multilingual database
var localizedTables = []string{"civicrm_event"}

// Localize rewrites multilingual templates to read from the per-locale
// views of the given locale. An empty locale returns r unchanged.
func (r *Registry) Localize(locale string) *Registry {
	if locale == "" {
		return r
	}
	out := r.clone()
	for _, f := range out.fields {
		if !f.Multilingual {
			continue
		}
		for _, table := range localizedTables {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(table) + `\b`)
			f.TriggerSQL = re.ReplaceAllString(f.TriggerSQL, table+"_"+locale)
		}
	}
	return out
}

// Subject returns the subject entity description
func (r *Registry) Subject() Subject {
	return r.subject
}

// Fields returns the fields in declaration order
func (r *Registry) Fields() []*Field {
	out := make([]*Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields
func (r *Registry) Len() int {
	return len(r.fields)
}

// Field looks up a field by name
func (r *Registry) Field(name string) (*Field, bool) {
	f, ok := r.index[name]
	return f, ok
}

// Table returns the override for a source table without contact_id
func (r *Registry) Table(name string) (TableOverride, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns the override table names, sorted
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Groups returns the custom group attributes keyed by group name
func (r *Registry) Groups() map[string]map[string]string {
	return r.clone().groups
}

// OptGroups returns the categories in declaration order
func (r *Registry) OptGroups() []*OptGroup {
	out := make([]*OptGroup, len(r.optgroups))
	copy(out, r.optgroups)
	return out
}

// OptGroup looks up a category by name
func (r *Registry) OptGroup(name string) (*OptGroup, bool) {
	g, ok := r.optIndex[name]
	return g, ok
}

// TriggerTables returns the distinct source tables, in order of first use
func (r *Registry) TriggerTables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, f := range r.fields {
		if !seen[f.TriggerTable] {
			seen[f.TriggerTable] = true
			tables = append(tables, f.TriggerTable)
		}
	}
	return tables
}

// FieldsByTable returns the fields fed by the given source table
func (r *Registry) FieldsByTable(table string) []*Field {
	var out []*Field
	for _, f := range r.fields {
		if f.TriggerTable == table {
			out = append(out, f)
		}
	}
	return out
}

// Export returns the definitions in the nested layout the host platform's
// custom field subsystem consumes: groups, tables, fields and optgroups.
func (r *Registry) Export() map[string]interface{} {
	fields := make(map[string]interface{}, len(r.fields))
	for _, f := range r.fields {
		entry := map[string]interface{}{
			"label":         f.Label,
			"data_type":     string(f.DataType),
			"html_type":     f.HTMLType,
			"weight":        fmt.Sprintf("%d", f.Weight),
			"text_length":   fmt.Sprintf("%d", f.TextLength),
			"trigger_sql":   f.TriggerSQL,
			"trigger_table": f.TriggerTable,
			"optgroup":      f.OptGroup,
		}
		if f.IsSearchRange != nil {
			entry["is_search_range"] = boolString(*f.IsSearchRange)
		}
		fields[f.Name] = entry
	}

	tables := make(map[string]interface{}, len(r.tables))
	for name, t := range r.tables {
		tables[name] = map[string]interface{}{
			"calculated_contact_id": t.CalculatedContactID,
			"trigger_field":         t.TriggerField,
			"initialize_join":       t.InitializeJoin,
		}
	}

	optgroups := make(map[string]interface{}, len(r.optgroups))
	for _, g := range r.optgroups {
		optgroups[g.Name] = map[string]interface{}{
			"title":     g.Title,
			"component": g.Component,
			"fieldset":  g.Fieldset,
		}
	}

	groups := make(map[string]interface{}, len(r.groups))
	for name, attrs := range r.groups {
		groups[name] = attrs
	}

	return map[string]interface{}{
		"groups":    groups,
		"tables":    tables,
		"fields":    fields,
		"optgroups": optgroups,
	}
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
