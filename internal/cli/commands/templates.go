package commands

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed all:templates
var templateFS embed.FS

// Project templates written by barrel init.
const (
	TemplateMinimal = "minimal"
	TemplateExample = "example"
)

// copyTemplate copies an embedded template directory to the target path.
// Existing files are kept unless force is set. It returns the files written.
func copyTemplate(templateName, targetDir string, force bool) ([]string, error) {
	root := path.Join("templates", templateName)
	var written []string

	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if relPath == "" {
			return nil
		}

		relPath = renameSpecialFiles(relPath)
		targetPath := filepath.Join(targetDir, filepath.FromSlash(relPath))

		if d.IsDir() {
			return os.MkdirAll(targetPath, 0o750)
		}

		if !force {
			if _, err := os.Stat(targetPath); err == nil {
				return nil
			}
		}

		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(targetPath, content, 0o600); err != nil {
			return err
		}
		written = append(written, relPath)
		return nil
	})

	return written, err
}

// renameSpecialFiles handles files that need renaming (e.g., dotfiles).
func renameSpecialFiles(p string) string {
	dir, base := path.Split(p)

	switch base {
	case "gitignore":
		return dir + ".gitignore"
	default:
		return p
	}
}

// listTemplateFiles returns all files in a template for display purposes.
func listTemplateFiles(templateName string) ([]string, error) {
	var files []string
	root := path.Join("templates", templateName)

	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, renameSpecialFiles(strings.TrimPrefix(p, root+"/")))
		}
		return nil
	})

	return files, err
}

// groupTemplateFiles splits files into configuration and module sources.
func groupTemplateFiles(files []string) map[string][]string {
	groups := map[string][]string{
		"config":  {},
		"modules": {},
	}

	for _, f := range files {
		switch {
		case strings.HasPrefix(f, "src/"):
			groups["modules"] = append(groups["modules"], f)
		default:
			groups["config"] = append(groups["config"], f)
		}
	}

	return groups
}
