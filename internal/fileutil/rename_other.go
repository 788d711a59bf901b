//go:build !linux

package fileutil

// RenameNoReplace moves oldPath to newPath, failing with ErrExists instead of
// overwriting. The existence check and the rename are separate calls here;
// the engine is the single writer so nothing races between them.
func RenameNoReplace(oldPath, newPath string) error {
	return renameChecked(oldPath, newPath)
}
