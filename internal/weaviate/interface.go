package weaviate

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when an object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object is a Weaviate object.
type Object struct {
	ID         string
	Class      string
	Properties map[string]interface{}
	Vector     []float32
}

// ObjectKey returns the unique key for an object.
func ObjectKey(className, objectID string) string {
	return className + "/" + objectID
}

// ObjectStore defines the Weaviate operations used by the link.
// This interface enables mocking for testing.
type ObjectStore interface {
	// Schema operations
	GetClasses(ctx context.Context) ([]string, error)
	CreateClass(ctx context.Context, className string, properties []string) error

	// Object operations
	GetAllObjects(ctx context.Context, className string, useCursor bool) ([]*Object, error)
	GetObject(ctx context.Context, className, objectID string) (*Object, error)
	CreateObject(ctx context.Context, obj *Object) error
	UpdateObject(ctx context.Context, obj *Object) error
	DeleteObject(ctx context.Context, className, objectID string) error

	// Query operations
	GetClassCount(ctx context.Context, className string) (int, error)
}

// Verify that *Client implements ObjectStore at compile time
var _ ObjectStore = (*Client)(nil)
