package entity

// ContainerFormat is the detected on-disk format of a downloaded file.
type ContainerFormat int

const (
	FormatRaw ContainerFormat = iota // plain database file, no container
	FormatZip
	FormatGzipTar
)

func (f ContainerFormat) String() string {
	return [...]string{"raw", "zip", "tar.gz"}[f]
}

// ExtractionResult points at the single database file resolved from a
// download, either the download itself or the one qualifying archive member.
type ExtractionResult struct {
	Path           string          // Database file ready for verification
	Format         ContainerFormat // Container the file came from
	DownloadedSize int64           // Size of the original download, for ratio accounting
}
