package utils

import (
	"os"
)

// ConstError is an error that can be declared as a constant.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

// ForceSymlink creates a symbolic link, replacing a previous link with the
// same name if one exists.
func ForceSymlink(target string, linkPath string) error {
	if info, err := os.Lstat(linkPath); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return ConstError("symlink path exists and is not a symlink: " + linkPath)
		}
		if err := os.Remove(linkPath); err != nil {
			return err
		}
	}
	return os.Symlink(target, linkPath)
}
