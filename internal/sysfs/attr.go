// Package sysfs provides the low-level attribute readers used by device
// discovery. Every reader takes a default value and returns it on any read or
// parse failure: callers must tolerate partial hardware telemetry, so a
// malformed attribute is never an error here.
package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadText reads a sysfs attribute and returns its trimmed contents, or ""
// when the attribute is missing or unreadable.
func ReadText(dir, attr string) string {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ReadInt parses a decimal attribute, falling back to def.
func ReadInt(dir string, def int, attr string) int {
	s := ReadText(dir, attr)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ReadUint64 parses an attribute that may be decimal or 0x-prefixed hex,
// falling back to def. PCI ids and class codes are exposed as hex.
func ReadUint64(dir string, def uint64, attr string) uint64 {
	s := ReadText(dir, attr)
	if s == "" {
		return def
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return def
	}
	return n
}

// ReadBool parses Y/N and 0/1 style module parameters, falling back to def.
func ReadBool(dir string, def bool, attr string) bool {
	switch strings.ToLower(ReadText(dir, attr)) {
	case "y", "1", "yes", "true":
		return true
	case "n", "0", "no", "false":
		return false
	}
	return def
}

// WriteText writes a value to a sysfs attribute.
func WriteText(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(value)
	return err
}

// ScanDir lists the absolute paths of entries directly under dir. A missing
// directory yields an empty slice; hardware classes come and go.
func ScanDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths
}

// DriverName resolves the driver symlink of a device and returns the driver's
// short name, or "" when the device is unbound.
func DriverName(devPath string) string {
	link, err := filepath.EvalSymlinks(filepath.Join(devPath, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// FindFile walks at most two levels below root looking for a file or
// directory with the given name and returns the directory containing it.
// AMD EM buffers and NVMe subdirectories sit at shallow, variable depths.
func FindFile(root, name string) (string, bool) {
	if _, err := os.Stat(filepath.Join(root, name)); err == nil {
		return root, true
	}
	for _, sub := range ScanDir(root) {
		if filepath.Base(sub) == name {
			return root, true
		}
		if _, err := os.Stat(filepath.Join(sub, name)); err == nil {
			return sub, true
		}
	}
	return "", false
}
