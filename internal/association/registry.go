package association

import (
	"fmt"
	"sync"
)

// Tags of the built-in associations.
const (
	TagHasMany         = "has-many"
	TagReferencedBy    = "referenced-by"
	TagHasManyInPlace  = "has-many-in-place"
	TagHasOneInPlace   = "has-one-in-place"
	TagHasManyTriggers = "has-many-triggers"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Association{
		TagHasMany:         HasMany{},
		TagReferencedBy:    HasManyReferenced{},
		TagHasManyInPlace:  HasManyInPlace{},
		TagHasOneInPlace:   HasOneInPlace{},
		TagHasManyTriggers: HasManyTriggers,
	}
)

// Register makes a custom association available under tag.
func Register(tag string, a Association) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[tag]; ok {
		return fmt.Errorf("association %q already registered", tag)
	}
	registry[tag] = a
	return nil
}

// Resolve returns the association registered under tag. An empty tag
// resolves to HasMany.
func Resolve(tag string) (Association, error) {
	if tag == "" {
		tag = TagHasMany
	}

	registryMu.RLock()
	defer registryMu.RUnlock()

	a, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("unknown association type %q", tag)
	}
	return a, nil
}
