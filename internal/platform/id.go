package platform

import "github.com/google/uuid"

// NewID returns a random UUID used for every record the panel creates.
func NewID() string {
	return uuid.New().String()
}
