package validator

import (
	"regexp"
	"sort"
	"strings"

	"github.com/example/cenv/internal/cenv/domain"
)

var (
	validNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	httpsURLPattern = regexp.MustCompile(`^https://github\.com/[\w-]+/[\w.-]+(\.git)?$`)
	sshURLPattern   = regexp.MustCompile(`^git@github\.com:[\w-]+/[\w.-]+\.git$`)
)

// reservedNames cannot be used as environment names. They collide with cenv's
// own directory layout or with path navigation.
var reservedNames = map[string]struct{}{
	".":       {},
	"..":      {},
	".trash":  {},
	".git":    {},
	".backup": {},
}

// ValidateName checks an environment name against the safe-name grammar and
// the reserved set. Names become filesystem paths, so this is the sole defense
// against path traversal via user-supplied names: every mutating operation
// must call it before touching the filesystem.
//
// Valid names match ^[A-Za-z0-9_-]+$ and are not reserved. Separators,
// whitespace, shell metacharacters and non-ASCII are all rejected by the
// whitelist.
func ValidateName(name string) error {
	if name == "" {
		return &domain.InvalidNameError{Name: name, Reason: "name cannot be empty"}
	}
	if _, reserved := reservedNames[name]; reserved {
		return &domain.InvalidNameError{
			Name:   name,
			Reason: "name is reserved (" + strings.Join(sortedReserved(), ", ") + ")",
		}
	}
	if !validNamePattern.MatchString(name) {
		return &domain.InvalidNameError{
			Name:   name,
			Reason: "names may contain only letters, digits, hyphens, and underscores",
		}
	}
	return nil
}

// IsRemoteURL reports whether source is a supported GitHub repository URL.
// Only https://github.com/owner/repo(.git) and git@github.com:owner/repo.git
// are accepted; everything else is rejected before any subprocess is spawned.
func IsRemoteURL(source string) bool {
	return httpsURLPattern.MatchString(source) || sshURLPattern.MatchString(source)
}

func sortedReserved() []string {
	names := make([]string, 0, len(reservedNames))
	for name := range reservedNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
