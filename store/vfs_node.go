package store

// VFSNodeKind distinguishes files from folders.
type VFSNodeKind string

const (
	VFSNodeFile   VFSNodeKind = "file"
	VFSNodeFolder VFSNodeKind = "folder"
)

// VFSNode is a node in the virtual filesystem, manipulable by both the user
// and, through tools, the model.
type VFSNode struct {
	ID        string
	ParentID  string // empty for root-level nodes
	Name      string
	Kind      VFSNodeKind
	Content   string
	MimeType  string
	CreatedTs int64
	UpdatedTs int64
}
