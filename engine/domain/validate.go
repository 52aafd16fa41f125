package domain

import (
	"path"
	"strings"
)

// ValidateConceptID checks the concept_id invariant from the data model:
// lowercase, starts alphanumeric, spaces allowed, no underscores.
func ValidateConceptID(id string) error {
	if id == "" {
		return NewValidationError("concept_id", id, ErrInternal)
	}
	if !ValidConceptID(id) {
		return NewValidationError("concept_id", id, ErrInternal)
	}
	return nil
}

// ValidateNoSelfLoop checks that id does not appear in its own outbound set.
func ValidateNoSelfLoop(id string, outbound []string) error {
	for _, t := range outbound {
		if t == id {
			return NewValidationError("outbound_links", id, ErrInternal)
		}
	}
	return nil
}

// ValidateBlobKey rejects path traversal and absolute paths in a
// user-supplied blob key; BlobStore keys are forward-slash-separated and
// must stay rooted under their logical prefix (uploads/, exports/).
func ValidateBlobKey(key string) error {
	if key == "" {
		return NewValidationError("blob_key", key, ErrInternal)
	}
	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") || strings.HasPrefix(clean, "/") || strings.Contains(key, "\x00") {
		return NewValidationError("blob_key", key, ErrInternal)
	}
	return nil
}

// ValidateFilename rejects empty or path-escaping filenames from uploads.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return NewValidationError("filename", name, ErrInternal)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return NewValidationError("filename", name, ErrInternal)
	}
	return nil
}
