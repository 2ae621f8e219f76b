package department

import "errors"

var (
	ErrCommandNotFound  = errors.New("command member not found")
	ErrDocumentNotFound = errors.New("document not found")
)
