// Package weaviate stores documents as objects of a Weaviate instance and
// serves them as a link of the request chain.
package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

// pageSize is the number of objects fetched per request when listing a class.
const pageSize = 100

// ServerVersion is a parsed Weaviate release number.
type ServerVersion struct {
	Version string
	Major   int
	Minor   int
	Patch   int
}

// parseVersion reads the leading "major.minor.patch" of a release string.
// Pre-release and build suffixes are ignored.
func parseVersion(version string) (*ServerVersion, error) {
	core, _, _ := strings.Cut(strings.TrimPrefix(version, "v"), "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid version format: %s", version)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid version format: %s", version)
		}
		nums[i] = n
	}
	return &ServerVersion{Version: version, Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// SupportsCursor reports whether the server paginates with cursors (1.18+).
func (v *ServerVersion) SupportsCursor() bool {
	return v.Major > 1 || (v.Major == 1 && v.Minor >= 18)
}

// Client is the ObjectStore backed by a live Weaviate instance.
type Client struct {
	client *weaviate.Client
}

// NewClient connects to the instance at rawURL. A bare host defaults to http.
func NewClient(rawURL string) (*Client, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid weaviate url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid weaviate url %q: unsupported scheme %s", rawURL, u.Scheme)
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: u.Host, Scheme: u.Scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Client{client: client}, nil
}

// Ping checks that the instance answers its liveness probe.
func (c *Client) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("connect to weaviate: %w", err)
	}
	if !live {
		return errors.New("weaviate is not live")
	}
	return nil
}

// GetServerVersion reads the release number from the instance metadata.
func (c *Client) GetServerVersion(ctx context.Context) (*ServerVersion, error) {
	meta, err := c.client.Misc().MetaGetter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get server metadata: %w", err)
	}
	return parseVersion(meta.Version)
}

func (c *Client) GetClasses(ctx context.Context) ([]string, error) {
	schema, err := c.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}

	names := make([]string, 0, len(schema.Classes))
	for _, class := range schema.Classes {
		names = append(names, class.Class)
	}
	return names, nil
}

// CreateClass creates a document class. Every property is text and vectors
// are supplied by the caller, so no vectorizer module is configured.
func (c *Client) CreateClass(ctx context.Context, className string, properties []string) error {
	props := make([]*weaviatemodels.Property, len(properties))
	for i, name := range properties {
		props[i] = &weaviatemodels.Property{Name: name, DataType: []string{"text"}}
	}

	class := &weaviatemodels.Class{
		Class:       className,
		Description: "doclink documents",
		Vectorizer:  "none",
		Properties:  props,
	}
	if err := c.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", className, err)
	}
	return nil
}

// aggregateCount is the shape of an Aggregate { Class { meta { count } } } reply.
type aggregateCount map[string][]struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
}

// GetClassCount counts the objects of a class with an aggregate query.
func (c *Client) GetClassCount(ctx context.Context, className string) (int, error) {
	result, err := c.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", className, err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("count %s: %s", className, result.Errors[0].Message)
	}

	raw, err := json.Marshal(result.Data["Aggregate"])
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", className, err)
	}
	var counts aggregateCount
	if err := json.Unmarshal(raw, &counts); err != nil {
		return 0, fmt.Errorf("count %s: unexpected aggregate response: %w", className, err)
	}
	if rows := counts[className]; len(rows) > 0 {
		return rows[0].Meta.Count, nil
	}
	return 0, nil
}

// GetAllObjects lists a class page by page, following the last object id
// when useCursor is set and an offset otherwise.
func (c *Client) GetAllObjects(ctx context.Context, className string, useCursor bool) ([]*Object, error) {
	var (
		all   []*Object
		after string
	)
	for page := 0; ; page++ {
		getter := c.client.Data().ObjectsGetter().
			WithClassName(className).
			WithVector().
			WithLimit(pageSize)
		switch {
		case !useCursor:
			getter = getter.WithOffset(page * pageSize)
		case after != "":
			getter = getter.WithAfter(after)
		}

		objs, err := getter.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", className, page, err)
		}
		for _, obj := range objs {
			if decoded := decodeAPIObject(obj); decoded != nil {
				all = append(all, decoded)
			}
		}
		if len(objs) < pageSize {
			return all, nil
		}
		after = objs[len(objs)-1].ID.String()
	}
}

// GetObject loads one object. The existence check runs first because the
// getter reports a missing object as a generic status error.
func (c *Client) GetObject(ctx context.Context, className, objectID string) (*Object, error) {
	key := ObjectKey(className, objectID)
	exists, err := c.client.Data().Checker().WithClassName(className).WithID(objectID).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", key, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	objs, err := c.client.Data().ObjectsGetter().
		WithClassName(className).
		WithID(objectID).
		WithVector().
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return decodeAPIObject(objs[0]), nil
}

func (c *Client) DeleteObject(ctx context.Context, className, objectID string) error {
	if err := c.client.Data().Deleter().WithClassName(className).WithID(objectID).Do(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", ObjectKey(className, objectID), err)
	}
	return nil
}

func (c *Client) CreateObject(ctx context.Context, obj *Object) error {
	creator := c.client.Data().Creator().
		WithClassName(obj.Class).
		WithID(obj.ID).
		WithProperties(obj.Properties)
	if len(obj.Vector) > 0 {
		creator = creator.WithVector(obj.Vector)
	}
	if _, err := creator.Do(ctx); err != nil {
		return fmt.Errorf("create %s: %w", ObjectKey(obj.Class, obj.ID), err)
	}
	return nil
}

// UpdateObject replaces the properties and vector of an existing object.
func (c *Client) UpdateObject(ctx context.Context, obj *Object) error {
	updater := c.client.Data().Updater().
		WithClassName(obj.Class).
		WithID(obj.ID).
		WithProperties(obj.Properties)
	if len(obj.Vector) > 0 {
		updater = updater.WithVector(obj.Vector)
	}
	if err := updater.Do(ctx); err != nil {
		return fmt.Errorf("update %s: %w", ObjectKey(obj.Class, obj.ID), err)
	}
	return nil
}

// apiObject is the JSON form of an object as returned by the REST API.
type apiObject struct {
	ID         string                 `json:"id"`
	Class      string                 `json:"class"`
	Properties map[string]interface{} `json:"properties"`
	Vector     []float32              `json:"vector"`
}

// decodeAPIObject converts a client object through its JSON form, which
// stays stable across client versions that type the vector differently.
func decodeAPIObject(obj interface{}) *Object {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var raw apiObject
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return &Object{ID: raw.ID, Class: raw.Class, Properties: raw.Properties, Vector: raw.Vector}
}
