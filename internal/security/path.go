package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrLeadingHyphen = errors.New("filename cannot start with hyphen")
	ErrEmptyDir      = errors.New("output directory is required")

	windowsReservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// ValidateSavePath checks a user-supplied relative file name for an export.
func ValidateSavePath(path string) error {
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}

	cleaned := filepath.Clean(path)

	if strings.HasPrefix(cleaned, "..") || strings.Contains(path, "..") {
		return ErrPathTraversal
	}

	base := filepath.Base(cleaned)
	if isReserved(base) {
		return ErrReservedName
	}

	if strings.HasPrefix(base, "-") {
		return ErrLeadingHyphen
	}

	return nil
}

// SanitizeFilename strips separators and characters that are unsafe in file
// names on common platforms.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ". ")

	if isReserved(sanitized) {
		sanitized = sanitized + "_"
	}

	if sanitized == "" {
		sanitized = "file"
	}

	return sanitized
}

// ResolveOutputPath joins a sanitized file name onto dir and verifies the
// result does not escape dir. dir itself may be absolute.
func ResolveOutputPath(dir, name string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", ErrEmptyDir
	}

	root := filepath.Clean(dir)
	path := filepath.Join(root, SanitizeFilename(name))

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}

	return path, nil
}

func isReserved(name string) bool {
	lower := strings.ToLower(name)
	return windowsReservedNames[strings.TrimSuffix(lower, filepath.Ext(lower))]
}
