package sandbox

import (
	"path"
	"strings"

	"judgecore/pkg/errs"
)

// ValidateSandboxPath rejects a sandbox-side path that tries to escape the
// sandbox root: any ".." segment is refused. An absolute path is accepted
// and treated as relative to the sandbox root. It returns the cleaned,
// slash-separated path (sandbox paths are always POSIX paths, regardless of
// the host OS), rooted under "/".
func ValidateSandboxPath(p string) (string, error) {
	if p == "" {
		return "", errs.New(errs.StagingIOError).WithMessage("empty sandbox path")
	}
	clean := path.Clean("/" + p)
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", errs.Newf(errs.StagingIOError, "sandbox path %q attempts traversal", p)
		}
	}
	return clean, nil
}
