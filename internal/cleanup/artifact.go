package cleanup

import (
	"log"
	"os"
)

// ArtifactRemover deletes a recording's local artifact
type ArtifactRemover interface {
	Remove(filename string) error
}

// RemoveArtifact deletes the artifact for filename. A failure is logged and
// reported through the return value only; the caller's session stays as is.
func RemoveArtifact(store ArtifactRemover, filename string) bool {
	if err := store.Remove(filename); err != nil {
		if os.IsNotExist(err) {
			log.Printf("Artifact %s already gone", filename)
		} else {
			log.Printf("Failed to delete artifact %s: %v", filename, err)
		}
		return false
	}
	log.Printf("%s deleted successfully", filename)
	return true
}
