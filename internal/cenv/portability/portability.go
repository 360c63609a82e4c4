// Package portability rewrites absolute paths in JSON configuration files to
// placeholder tokens for publishing, and expands them back on import, so an
// exported environment works on a machine with a different home directory.
package portability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// Placeholder tokens.
const (
	PlaceholderClaudeHome = "{{CLAUDE_HOME}}"
	PlaceholderUserHome   = "{{USER_HOME}}"
)

var absPathPattern = regexp.MustCompile(`(?:^|["\s])(/[^\s"']+|[A-Za-z]:\\[^\s"']+)`)

// Substitute replaces occurrences of claudeHome and userHome in the decoded
// JSON value with placeholder tokens. It returns the transformed value and
// warnings for absolute paths that could not be substituted.
func Substitute(content any, claudeHome, userHome string) (any, []string) {
	w := &walker{claudeHome: claudeHome, userHome: userHome}
	result := w.substitute(content)
	return result, w.warnings
}

// Expand replaces placeholder tokens in the decoded JSON value with this
// machine's paths.
func Expand(content any, claudeHome, userHome string) any {
	w := &walker{claudeHome: claudeHome, userHome: userHome}
	return w.expand(content)
}

type walker struct {
	claudeHome string
	userHome   string
	warnings   []string
}

func (w *walker) substitute(obj any) any {
	switch v := obj.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = w.substitute(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = w.substitute(item)
		}
		return result
	case string:
		return w.substituteString(v)
	default:
		return obj
	}
}

func (w *walker) substituteString(value string) string {
	// Already-portable strings pass through untouched.
	if strings.Contains(value, PlaceholderClaudeHome) || strings.Contains(value, PlaceholderUserHome) {
		return value
	}

	result := value
	// Claude home first: it is the more specific prefix.
	result = strings.ReplaceAll(result, w.claudeHome, PlaceholderClaudeHome)
	result = strings.ReplaceAll(result, w.userHome, PlaceholderUserHome)

	if result == value && isAbsolutePath(value) {
		for _, match := range absPathPattern.FindAllStringSubmatch(value, -1) {
			path := match[1]
			if !strings.HasPrefix(path, w.userHome) && !strings.HasPrefix(path, w.claudeHome) {
				w.warnings = append(w.warnings, path)
			}
		}
	}
	return result
}

func (w *walker) expand(obj any) any {
	switch v := obj.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = w.expand(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = w.expand(item)
		}
		return result
	case string:
		expanded := strings.ReplaceAll(v, PlaceholderClaudeHome, w.claudeHome)
		return strings.ReplaceAll(expanded, PlaceholderUserHome, w.userHome)
	default:
		return obj
	}
}

func isAbsolutePath(value string) bool {
	if strings.HasPrefix(value, "/") || strings.HasPrefix(value, `\\`) {
		return true
	}
	return len(value) >= 3 && value[1] == ':' && (value[2] == '/' || value[2] == '\\')
}

// ProcessForPublish rewrites every JSON file under dir with placeholders
// substituted, returning warnings for paths that could not be made portable.
// Unparsable files are skipped, not failed.
func ProcessForPublish(fs afero.Fs, dir, claudeHome, userHome string) ([]string, error) {
	var allWarnings []string
	err := eachJSONFile(fs, dir, func(path string, content any) (any, error) {
		transformed, warnings := Substitute(content, claudeHome, userHome)
		for _, warning := range warnings {
			allWarnings = append(allWarnings, fmt.Sprintf("%s: %s", filepath.Base(path), warning))
		}
		return transformed, nil
	})
	return allWarnings, err
}

// ProcessForImport expands placeholders in every JSON file under dir.
func ProcessForImport(fs afero.Fs, dir, claudeHome, userHome string) error {
	return eachJSONFile(fs, dir, func(path string, content any) (any, error) {
		return Expand(content, claudeHome, userHome), nil
	})
}

func eachJSONFile(fs afero.Fs, dir string, transform func(path string, content any) (any, error)) error {
	return afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil
		}
		var content any
		if err := json.Unmarshal(data, &content); err != nil {
			return nil
		}

		transformed, err := transform(path, content)
		if err != nil {
			return err
		}
		if reflect.DeepEqual(transformed, content) {
			return nil
		}

		out, err := json.MarshalIndent(transformed, "", "  ")
		if err != nil {
			return nil
		}
		return afero.WriteFile(fs, path, append(out, '\n'), info.Mode().Perm())
	})
}
