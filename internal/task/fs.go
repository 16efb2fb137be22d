package task

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// File operations behind the file() helper. Paths are absolute.

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func folderExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func assertFile(operation, path string) error {
	if fileExists(path) {
		return nil
	}

	return fmt.Errorf("file.%s: the file path '%s' does not exist", operation, path)
}

func assertFolder(operation, path string) error {
	if folderExists(path) {
		return nil
	}

	return fmt.Errorf("folder.%s: the folder path '%s' does not exist", operation, path)
}

func readFile(path string) (string, error) {
	if err := assertFile("read", path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)

	return string(data), err
}

func writeFile(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(data), 0o644)
}

func appendFile(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func prependFile(path, data string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return writeFile(path, data+string(existing))
}

func createFile(path string) error {
	if fileExists(path) {
		return nil
	}

	return writeFile(path, "")
}

func deleteFile(path string) error {
	if !fileExists(path) {
		return nil
	}

	return os.Remove(path)
}

// copyFileInto copies path into folder, keeping its base name.
func copyFileInto(path, folder string) error {
	if err := assertFile("copy", path); err != nil {
		return err
	}

	return copyFile(path, filepath.Join(folder, filepath.Base(path)))
}

func moveFileInto(path, folder string) error {
	if err := copyFileInto(path, folder); err != nil {
		return err
	}

	return os.Remove(path)
}

func renameFile(path, name string) error {
	if err := assertFile("rename", path); err != nil {
		return err
	}

	return os.Rename(path, filepath.Join(filepath.Dir(path), name))
}

func fileSize(path string) (int64, error) {
	if err := assertFile("size", path); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

func hashFile(path, algorithm string) (string, error) {
	if err := assertFile("hash", path); err != nil {
		return "", err
	}
	if algorithm == "" {
		algorithm = "sha1"
	}
	newHash, ok := hashes[algorithm]
	if !ok {
		return "", fmt.Errorf("file.hash: unsupported algorithm %q", algorithm)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// Folder operations behind the folder() helper.

func createFolder(path string) error {
	return os.MkdirAll(path, 0o755)
}

func deleteFolder(path string) error {
	if !folderExists(path) {
		return nil
	}

	return os.RemoveAll(path)
}

// copyTree copies the contents of src into dst, creating dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return nil
		}
	})
}

// addToFolder copies a file or folder into folder. A missing source is
// ignored.
func addToFolder(folder, source string) error {
	if err := createFolder(folder); err != nil {
		return err
	}
	switch {
	case folderExists(source):
		return copyTree(source, filepath.Join(folder, filepath.Base(source)))
	case fileExists(source):
		return copyFile(source, filepath.Join(folder, filepath.Base(source)))
	default:
		return nil
	}
}

// copyFolderInto copies path into target, keeping its base name.
func copyFolderInto(path, target string) error {
	if err := assertFolder("copy", path); err != nil {
		return err
	}

	return copyTree(path, filepath.Join(target, filepath.Base(path)))
}

func moveFolderInto(path, target string) error {
	if err := copyFolderInto(path, target); err != nil {
		return err
	}

	return os.RemoveAll(path)
}

func renameFolder(path, name string) error {
	if err := assertFolder("rename", path); err != nil {
		return err
	}

	return os.Rename(path, filepath.Join(filepath.Dir(path), name))
}

func folderSize(path string) (int64, error) {
	if err := assertFolder("size", path); err != nil {
		return 0, err
	}

	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})

	return size, err
}

// copyContents copies the entries of path into target.
func copyContents(path, target string) error {
	if err := assertFolder("contents.copy", path); err != nil {
		return err
	}

	return copyTree(path, target)
}

// moveContents moves the entries of path into target, leaving path empty.
func moveContents(path, target string) error {
	if err := copyContents(path, target); err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(path, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}
