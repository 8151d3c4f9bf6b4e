package prompt

import "strings"

type section struct {
	name string
	body string
}

// Builder is an ordered list of named prompt sections. Setting an existing
// name replaces its body in place; new names are appended.
type Builder struct {
	sections []section
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Set(name, body string) *Builder {
	for i := range b.sections {
		if b.sections[i].name == name {
			b.sections[i].body = body
			return b
		}
	}
	b.sections = append(b.sections, section{name: name, body: body})
	return b
}

func (b *Builder) Get(name string) (string, bool) {
	for _, s := range b.sections {
		if s.name == name {
			return s.body, true
		}
	}
	return "", false
}

func (b *Builder) Remove(name string) {
	for i, s := range b.sections {
		if s.name == name {
			b.sections = append(b.sections[:i], b.sections[i+1:]...)
			return
		}
	}
}

// Names returns section names in output order.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.sections))
	for _, s := range b.sections {
		names = append(names, s.name)
	}
	return names
}

// String joins non-empty sections with a blank line.
func (b *Builder) String() string {
	var parts []string
	for _, s := range b.sections {
		if body := strings.TrimSpace(s.body); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}
