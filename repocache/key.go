package repocache

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/utilitywarehouse/git-cache/giturl"
)

const keyLen = 12

var matchSpecialCharReg = regexp.MustCompile(`[\\:\/*?"<>|\s]`)
var matchDupUnderscoreReg = regexp.MustCompile(`_+`)

// entry dir names end with the cache key
var entryDirRgx = regexp.MustCompile(`^.+_[0-9a-f]{12}$`)

// deriveKey returns the cache key of a remote repository. the key is a
// pure function of the repository identity (provider, owner, name) so
// it is stable across processes and restarts. the requested git ref is
// deliberately not part of the key, all refs of a repository share one
// clone.
func deriveKey(ref *giturl.Reference) string {
	sum := xxhash.Sum64String(ref.Provider + "/" + ref.Owner + "/" + ref.Name)
	return fmt.Sprintf("%016x", sum)[:keyLen]
}

// entryDirName returns the dir name of a cached repository. owner and
// name are embedded in sanitised form so operators can tell entries
// apart, the key suffix makes the name collision free.
func entryDirName(ref *giturl.Reference, key string) string {
	return fmt.Sprintf("%s_%s_%s", sanitise(ref.Owner), sanitise(ref.Name), key)
}

// entryPath returns the absolute path of a cached repository dir.
func entryPath(reposRoot string, ref *giturl.Reference, key string) string {
	return filepath.Join(reposRoot, entryDirName(ref, key))
}

// isEntryDirName reports whether a dir name under the repos root was
// created by the cache.
func isEntryDirName(name string) bool {
	return entryDirRgx.MatchString(name)
}

func sanitise(s string) string {
	s = strings.TrimSpace(s)
	// remove special char not allowed in file name
	s = matchSpecialCharReg.ReplaceAllString(s, "_")
	s = matchDupUnderscoreReg.ReplaceAllString(s, "_")
	return s
}
