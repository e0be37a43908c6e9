package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Determines the application type from the source path.
//
// A directory containing __main__.py is a Python module; one containing
// CMakeLists.txt is a C++ CMake project. A single .py file (directly or as
// the only Python file in a directory) is a Python file application, and
// an executable file is a prebuilt binary. Anything else is a
// configuration error rather than a guess.
func DetectApplicationType(path string) (ApplicationType, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: application path: %w", ErrConfiguration, err)
	}

	if !info.IsDir() {
		return detectFileType(path, info)
	}

	if _, err := os.Stat(filepath.Join(path, "__main__.py")); err == nil {
		return PythonModule, nil
	}
	if _, err := os.Stat(filepath.Join(path, "CMakeLists.txt")); err == nil {
		return CppCMake, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("%w: application path: %w", ErrConfiguration, err)
	}

	var pyFiles, executables []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".py") {
			pyFiles = append(pyFiles, e.Name())
			continue
		}
		fi, err := e.Info()
		if err == nil && fi.Mode()&0111 != 0 {
			executables = append(executables, e.Name())
		}
	}

	if len(pyFiles) == 1 {
		return PythonFile, nil
	}
	if len(pyFiles) == 0 && len(executables) == 1 {
		return Binary, nil
	}

	return "", fmt.Errorf("%w: cannot determine application type of %q", ErrConfiguration, path)
}

// Classifies a single-file application source.
func detectFileType(path string, info os.FileInfo) (ApplicationType, error) {
	if strings.HasSuffix(path, ".py") {
		return PythonFile, nil
	}
	if info.Mode()&0111 != 0 {
		return Binary, nil
	}
	return "", fmt.Errorf("%w: %q is neither a Python file nor an executable", ErrConfiguration, path)
}

// Returns the launchable entry inside the application directory.
//
// For a Python file or binary application rooted at a directory, the entry
// is the single matching file; for a direct file path, the file itself.
// Python modules and CMake projects launch by directory and return "".
func ApplicationEntry(path string, appType ApplicationType) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: application path: %w", ErrConfiguration, err)
	}

	if !info.IsDir() {
		return filepath.Base(path), nil
	}

	switch appType {
	case PythonModule, CppCMake:
		return "", nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("%w: application path: %w", ErrConfiguration, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if appType == PythonFile && strings.HasSuffix(e.Name(), ".py") {
			return e.Name(), nil
		}
		if appType == Binary {
			if fi, err := e.Info(); err == nil && fi.Mode()&0111 != 0 {
				return e.Name(), nil
			}
		}
	}

	return "", fmt.Errorf("%w: no launchable entry found in %q", ErrConfiguration, path)
}
