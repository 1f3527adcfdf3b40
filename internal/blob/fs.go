package blob

import (
	fsstore "readycore/internal/infra/blob/fs"
)

// NewFilesystem returns a filesystem-backed blob.Store rooted at root,
// creating the directory if needed.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }
