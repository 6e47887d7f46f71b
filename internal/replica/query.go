package replica

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
	"go.uber.org/zap"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// Query executes def. Definitions without selector, fields or sort read the
// doctype in insertion order. Others go through an index on the selector
// equality fields and are evaluated in memory.
func (s *Store) Query(ctx context.Context, def *query.Definition) (*models.Response, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if def.IsIDQuery() {
		return s.byIDs(ctx, def)
	}
	if len(def.Selector) == 0 && len(def.Fields) == 0 && len(def.Sort) == 0 {
		return s.allDocs(ctx, def)
	}
	return s.find(ctx, def)
}

func (s *Store) byIDs(ctx context.Context, def *query.Definition) (*models.Response, error) {
	ids := def.RequestedIDs()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, def.Doctype)
	for _, id := range ids {
		args = append(args, id)
	}

	docs, err := s.selectDocuments(ctx,
		`SELECT data FROM documents WHERE doctype = ? AND id IN (`+placeholders+`) ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	return query.Evaluate(def, docs), nil
}

func (s *Store) allDocs(ctx context.Context, def *query.Definition) (*models.Response, error) {
	total, err := s.Count(ctx, def.Doctype)
	if err != nil {
		return nil, err
	}

	if def.Bookmark != "" {
		docs, err := s.selectDocuments(ctx,
			`SELECT data FROM documents WHERE doctype = ? ORDER BY seq`, def.Doctype)
		if err != nil {
			return nil, err
		}
		return query.Evaluate(def, docs), nil
	}

	limit := -1
	if def.Limit > 0 {
		limit = def.Limit
	}
	docs, err := s.selectDocuments(ctx,
		`SELECT data FROM documents WHERE doctype = ? ORDER BY seq LIMIT ? OFFSET ?`,
		def.Doctype, limit, def.Skip)
	if err != nil {
		return nil, err
	}

	resp := models.NewListResponse(docs)
	resp.Meta = &models.Meta{Count: total}
	resp.Skip = def.Skip
	resp.Next = def.Skip+len(docs) < total
	return resp, nil
}

func (s *Store) find(ctx context.Context, def *query.Definition) (*models.Response, error) {
	where := []string{"doctype = ?"}
	args := []interface{}{def.Doctype}

	var indexed []string
	eq := def.Selector.EqualityFields()
	fields := make([]string, 0, len(eq))
	for field := range eq {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := sqlValue(eq[field])
		switch {
		case field == "_id":
			where = append(where, "id = ?")
			args = append(args, value)
		case field == "_rev":
			where = append(where, "rev = ?")
			args = append(args, value)
		case strings.HasPrefix(field, "_") || !fieldPattern.MatchString(field):
			continue
		default:
			where = append(where, jsonPath(field)+" = ?")
			args = append(args, value)
			indexed = append(indexed, field)
		}
	}

	if len(indexed) > 0 {
		if _, err := s.EnsureIndex(ctx, def.Doctype, indexed); err != nil {
			return nil, err
		}
	}

	docs, err := s.selectDocuments(ctx,
		`SELECT data FROM documents WHERE `+strings.Join(where, " AND ")+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	return query.Evaluate(def, docs), nil
}

// EnsureIndex creates an index over the given attribute paths of doctype and
// returns its name. Indexes are created once per store.
func (s *Store) EnsureIndex(ctx context.Context, doctype string, fields []string) (string, error) {
	for _, f := range fields {
		if !fieldPattern.MatchString(f) {
			return "", fmt.Errorf("cannot index field %q", f)
		}
	}
	name := indexName(doctype, fields)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; ok {
		return name, nil
	}

	exprs := make([]string, len(fields))
	for i, f := range fields {
		exprs[i] = jsonPath(f)
	}
	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON documents(doctype, %s)`, name, strings.Join(exprs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to create index %s: %w", name, err)
	}

	s.indexes[name] = doctype
	s.logger.Debug("index created", zap.String("index", name), zap.Strings("fields", fields))
	return name, nil
}

func indexName(doctype string, fields []string) string {
	var b strings.Builder
	b.WriteString("idx_")
	for _, r := range doctype + "__" + strings.Join(fields, "__") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func jsonPath(field string) string {
	parts := strings.Split(field, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return fmt.Sprintf(`json_extract(data, '$.attributes.%s')`, strings.Join(parts, "."))
}

// sqlValue converts a JSON scalar to the value json_extract yields for it.
func sqlValue(v interface{}) interface{} {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func (s *Store) selectDocuments(ctx context.Context, stmt string, args ...interface{}) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
