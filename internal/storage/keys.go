package storage

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"logbook/internal/utils"
)

// ObjectKey namespaces a stored file as {entityID}/{variant}/{generated}.
// The generated name keeps the original extension.
func ObjectKey(entityID int64, variant, originalName string) string {
	ext := strings.ToLower(path.Ext(originalName))
	if len(ext) > 10 {
		ext = ""
	}

	fileName := fmt.Sprintf("%d_%s_%s%s", entityID, variant, utils.NanoID(), ext)
	return fmt.Sprintf("%d/%s/%s", entityID, variant, fileName)
}

// EntityID extracts the leading entity id of a key built by ObjectKey.
func EntityID(key string) (int64, bool) {
	head, _, found := strings.Cut(key, "/")
	if !found {
		return 0, false
	}

	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}
