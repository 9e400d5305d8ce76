package shelf

// DefaultExtension classifies uploads whose filename carries no
// extension. E-book containers are the primary format this service
// handles, so they are the default.
const DefaultExtension = "epub"

// Config carries the process-wide settings for a Library. It is passed
// explicitly to New rather than read from ambient global state.
type Config struct {
	// StorageRoot is the directory holding blobs and extracted covers.
	StorageRoot string

	// DefaultExtension overrides DefaultExtension for extension-less
	// filenames. Leading dots and case are normalized away.
	DefaultExtension string
}
