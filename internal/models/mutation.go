package models

// MutationType represents the type of a document mutation
type MutationType string

const (
	MutationCreate        MutationType = "create_document"
	MutationUpdate        MutationType = "update_document"
	MutationDelete        MutationType = "delete_document"
	MutationAddReferences MutationType = "add_references_to"
	MutationUploadFile    MutationType = "upload_file"
)

// Mutation represents a single write operation
type Mutation struct {
	Type       MutationType `json:"mutation_type"`
	Document   *Document    `json:"document,omitempty"`
	Referenced []*Document  `json:"referenced,omitempty"` // documents that gain a referenced_by entry for Document
	Content    []byte       `json:"-"`                    // file content of upload_file
}

// Doctype returns the doctype impacted by the mutation.
func (m *Mutation) Doctype() string {
	if m.Document == nil {
		return ""
	}
	return m.Document.Type
}
