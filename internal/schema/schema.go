// Package schema stores the declarations of each doctype: its attributes and
// its relationships to other doctypes.
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kilupskalvis/doclink/internal/association"
	"github.com/kilupskalvis/doclink/internal/models"
)

var (
	ErrUnknownDoctype       = errors.New("no schema found for doctype")
	ErrDuplicateDeclaration = errors.New("duplicate schema declaration")
	ErrUnknownRelationship  = errors.New("unknown relationship")
)

// AttributeDefinition describes one attribute of a doctype.
type AttributeDefinition struct {
	Unique bool `yaml:"unique"`
}

// RelationshipDefinition declares a relationship. Type is the tag of a
// registered association; Association takes precedence when set.
type RelationshipDefinition struct {
	Type        string                  `yaml:"type"`
	Doctype     string                  `yaml:"doctype"`
	Inverted    bool                    `yaml:"inverted"`
	Association association.Association `yaml:"-"`
}

// DoctypeDefinition declares a doctype.
type DoctypeDefinition struct {
	Doctype       string                            `yaml:"doctype"`
	Attributes    map[string]AttributeDefinition    `yaml:"attributes"`
	Relationships map[string]RelationshipDefinition `yaml:"relationships"`
}

// Definition maps schema names to doctype definitions.
type Definition map[string]DoctypeDefinition

// DoctypeSchema is the normalized schema of a doctype.
type DoctypeSchema struct {
	Name          string
	Doctype       string
	Attributes    map[string]AttributeDefinition
	Relationships map[string]*association.Relationship
}

// RelationshipNames returns the declared relationship names, sorted.
func (s *DoctypeSchema) RelationshipNames() []string {
	names := make([]string, 0, len(s.Relationships))
	for name := range s.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UniquenessChecker checks that no other document of the doctype of doc
// holds the same value for attribute.
type UniquenessChecker interface {
	CheckUniqueness(ctx context.Context, doc *models.Document, attribute string) (bool, error)
}

// Schema is the registry of doctype schemas. It is safe for concurrent use;
// it is expected to be populated once before queries start.
type Schema struct {
	mu        sync.RWMutex
	byDoctype map[string]*DoctypeSchema
	checker   UniquenessChecker
}

// New creates an empty schema. checker may be nil, in which case unique
// attributes are not checked.
func New(checker UniquenessChecker) *Schema {
	return &Schema{
		byDoctype: make(map[string]*DoctypeSchema),
		checker:   checker,
	}
}

// SetChecker sets the uniqueness checker used by Validate.
func (s *Schema) SetChecker(checker UniquenessChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checker = checker
}

// Add normalizes and registers the given definitions. Nothing is registered
// if any name or doctype is already known.
func (s *Schema) Add(def Definition) error {
	normalized := make([]*DoctypeSchema, 0, len(def))
	for name, dt := range def {
		ds, err := normalize(name, dt)
		if err != nil {
			return err
		}
		normalized = append(normalized, ds)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Name < normalized[j].Name })

	s.mu.Lock()
	defer s.mu.Unlock()

	var sameNames, sameDoctypes []string
	for _, ds := range normalized {
		for _, existing := range s.byDoctype {
			if existing.Name == ds.Name {
				sameNames = append(sameNames, ds.Name)
			}
		}
		if _, ok := s.byDoctype[ds.Doctype]; ok {
			sameDoctypes = append(sameDoctypes, ds.Doctype)
		}
	}
	if len(sameNames) > 0 {
		return fmt.Errorf("%w: names %s", ErrDuplicateDeclaration, strings.Join(sameNames, ", "))
	}
	if len(sameDoctypes) > 0 {
		return fmt.Errorf("%w: doctypes %s", ErrDuplicateDeclaration, strings.Join(sameDoctypes, ", "))
	}

	seen := make(map[string]string)
	for _, ds := range normalized {
		if other, ok := seen[ds.Doctype]; ok {
			return fmt.Errorf("%w: doctype %s declared by %s and %s", ErrDuplicateDeclaration, ds.Doctype, other, ds.Name)
		}
		seen[ds.Doctype] = ds.Name
	}

	for _, ds := range normalized {
		s.byDoctype[ds.Doctype] = ds
	}
	return nil
}

func normalize(name string, def DoctypeDefinition) (*DoctypeSchema, error) {
	if def.Doctype == "" {
		return nil, fmt.Errorf("schema %s: missing doctype", name)
	}

	ds := &DoctypeSchema{
		Name:          name,
		Doctype:       def.Doctype,
		Attributes:    def.Attributes,
		Relationships: make(map[string]*association.Relationship, len(def.Relationships)),
	}
	if ds.Attributes == nil {
		ds.Attributes = make(map[string]AttributeDefinition)
	}

	for relName, rd := range def.Relationships {
		assoc := rd.Association
		if assoc == nil {
			var err error
			assoc, err = association.Resolve(rd.Type)
			if err != nil {
				return nil, fmt.Errorf("schema %s, relationship %s: %w", name, relName, err)
			}
		}
		ds.Relationships[relName] = &association.Relationship{
			Name:     relName,
			Doctype:  rd.Doctype,
			Type:     assoc,
			Inverted: rd.Inverted,
		}
	}
	return ds, nil
}

// GetDoctypeSchema returns the schema of a doctype.
func (s *Schema) GetDoctypeSchema(doctype string) (*DoctypeSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.byDoctype[doctype]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDoctype, doctype)
	}
	return ds, nil
}

// GetRelationship returns the named relationship of a doctype.
func (s *Schema) GetRelationship(doctype, name string) (*association.Relationship, error) {
	ds, err := s.GetDoctypeSchema(doctype)
	if err != nil {
		return nil, err
	}
	rel, ok := ds.Relationships[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownRelationship, name, doctype)
	}
	return rel, nil
}

// Doctypes returns the registered doctype schemas sorted by name.
func (s *Schema) Doctypes() []*DoctypeSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*DoctypeSchema, 0, len(s.byDoctype))
	for _, ds := range s.byDoctype {
		result = append(result, ds)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ValidationErrors maps attribute names to the reason they are invalid.
type ValidationErrors map[string]string

// ValidationError is returned when saving an invalid document.
type ValidationError struct {
	Doctype string
	Fields  ValidationErrors
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + e.Fields[name]
	}
	return fmt.Sprintf("invalid %s document: %s", e.Doctype, strings.Join(parts, ", "))
}

// Validate checks doc against the attribute declarations of its doctype.
// Documents of undeclared doctypes are valid. A nil map means valid; the
// error is only set when a check could not run.
func (s *Schema) Validate(ctx context.Context, doc *models.Document) (ValidationErrors, error) {
	s.mu.RLock()
	ds, ok := s.byDoctype[doc.Type]
	checker := s.checker
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var errs ValidationErrors
	for name, attr := range ds.Attributes {
		if !attr.Unique || checker == nil {
			continue
		}
		unique, err := checker.CheckUniqueness(ctx, doc, name)
		if err != nil {
			return nil, fmt.Errorf("check uniqueness of %s: %w", name, err)
		}
		if !unique {
			if errs == nil {
				errs = make(ValidationErrors)
			}
			errs[name] = "must be unique"
		}
	}
	return errs, nil
}
