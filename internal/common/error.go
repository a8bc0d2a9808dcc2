package common

import "fmt"

var (
	ErrJobNotFoundError      = fmt.Errorf("job not found")
	ErrDatabaseNotFoundError = fmt.Errorf("database not found")

	ErrDownloadError  = fmt.Errorf("download failed")
	ErrArchiveError   = fmt.Errorf("archive rejected")
	ErrIntegrityError = fmt.Errorf("integrity check failed")
	ErrInstallError   = fmt.Errorf("install failed")
)
