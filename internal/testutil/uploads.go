package testutil

import "logbook/pkg/types"

// Photo returns a small upload the validators accept as an image.
func Photo(name string) *types.FileUpload {
	body := []byte("photo:" + name)
	return &types.FileUpload{Name: name, ContentType: "image/jpeg", Size: int64(len(body)), Body: body}
}

func Photos(imageType types.ImageType, names ...string) types.ImageSetUpload {
	set := types.ImageSetUpload{ImageType: imageType}
	for _, name := range names {
		set.Files = append(set.Files, Photo(name))
	}
	return set
}

// Letter returns an assignment letter upload.
func Letter(name string) types.DocumentUpload {
	body := []byte("%PDF-1.4 " + name)
	return types.DocumentUpload{
		File:         &types.FileUpload{Name: name, ContentType: "application/pdf", Size: int64(len(body)), Body: body},
		DocumentType: types.DocTypeAssignmentLetter,
	}
}
