package weaviate

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MockClient is an in-memory ObjectStore for tests. Classes must be created
// before objects are written to them, as on a live instance.
type MockClient struct {
	mu      sync.Mutex
	classes map[string]*mockClass
	calls   map[string]int

	// Err, when set, fails every call.
	Err error
}

type mockClass struct {
	properties []string
	objects    map[string]*Object
}

func NewMockClient() *MockClient {
	return &MockClient{
		classes: make(map[string]*mockClass),
		calls:   make(map[string]int),
	}
}

// enter locks the mock and records a call to method.
func (m *MockClient) enter(method string) error {
	m.mu.Lock()
	m.calls[method]++
	return m.Err
}

// Calls returns how many times method was invoked.
func (m *MockClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Properties returns the properties a class was created with.
func (m *MockClient) Properties(className string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[className]
	if !ok {
		return nil, false
	}
	return append([]string(nil), c.properties...), true
}

// Object returns a copy of a stored object, or nil.
func (m *MockClient) Object(className, objectID string) *Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classes[className]; ok {
		if obj, ok := c.objects[objectID]; ok {
			return copyObject(obj)
		}
	}
	return nil
}

// Len returns the number of stored objects across classes.
func (m *MockClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.classes {
		n += len(c.objects)
	}
	return n
}

func (m *MockClient) GetClasses(ctx context.Context) ([]string, error) {
	err := m.enter("GetClasses")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.classes))
	for name := range m.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockClient) CreateClass(ctx context.Context, className string, properties []string) error {
	err := m.enter("CreateClass")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := m.classes[className]; ok {
		return fmt.Errorf("class %s already exists", className)
	}
	m.classes[className] = &mockClass{
		properties: append([]string(nil), properties...),
		objects:    make(map[string]*Object),
	}
	return nil
}

// GetAllObjects returns the objects of a class ordered by object id, the
// order cursor pagination yields.
func (m *MockClient) GetAllObjects(ctx context.Context, className string, useCursor bool) ([]*Object, error) {
	err := m.enter("GetAllObjects")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c, ok := m.classes[className]
	if !ok {
		return nil, nil
	}
	result := make([]*Object, 0, len(c.objects))
	for _, obj := range c.objects {
		result = append(result, copyObject(obj))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockClient) GetObject(ctx context.Context, className, objectID string) (*Object, error) {
	err := m.enter("GetObject")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if c, ok := m.classes[className]; ok {
		if obj, ok := c.objects[objectID]; ok {
			return copyObject(obj), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ObjectKey(className, objectID))
}

func (m *MockClient) CreateObject(ctx context.Context, obj *Object) error {
	err := m.enter("CreateObject")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	c, ok := m.classes[obj.Class]
	if !ok {
		return fmt.Errorf("class %s not found", obj.Class)
	}
	if _, exists := c.objects[obj.ID]; exists {
		return fmt.Errorf("object %s already exists", ObjectKey(obj.Class, obj.ID))
	}
	c.objects[obj.ID] = copyObject(obj)
	return nil
}

func (m *MockClient) UpdateObject(ctx context.Context, obj *Object) error {
	err := m.enter("UpdateObject")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	c, ok := m.classes[obj.Class]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, ObjectKey(obj.Class, obj.ID))
	}
	if _, exists := c.objects[obj.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, ObjectKey(obj.Class, obj.ID))
	}
	c.objects[obj.ID] = copyObject(obj)
	return nil
}

func (m *MockClient) DeleteObject(ctx context.Context, className, objectID string) error {
	err := m.enter("DeleteObject")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if c, ok := m.classes[className]; ok {
		delete(c.objects, objectID)
	}
	return nil
}

func (m *MockClient) GetClassCount(ctx context.Context, className string) (int, error) {
	err := m.enter("GetClassCount")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if c, ok := m.classes[className]; ok {
		return len(c.objects), nil
	}
	return 0, nil
}

func copyObject(obj *Object) *Object {
	c := *obj
	c.Properties = make(map[string]interface{}, len(obj.Properties))
	for k, v := range obj.Properties {
		c.Properties[k] = v
	}
	c.Vector = append([]float32(nil), obj.Vector...)
	return &c
}

var _ ObjectStore = (*MockClient)(nil)
