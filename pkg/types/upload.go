package types

// FileUpload is a file received from a client, fully buffered.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Body        []byte
}

// DocumentUpload is the upload variant used for event documents.
type DocumentUpload struct {
	File         *FileUpload
	DocumentType string
}

// ImageSetUpload is the upload variant used for tool photos.
type ImageSetUpload struct {
	Files     []*FileUpload
	ImageType ImageType
}

func (s ImageSetUpload) Len() int {
	return len(s.Files)
}
