package process

import (
	"os/exec"
	"strings"

	"github.com/xkilldash9x/ebaybot/internal/failure"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Resolve returns the path of the first candidate found on PATH.
func Resolve(role string, candidates ...string) (string, error) {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", failure.Newf(failure.CodeDependencyNotFound, role, "none of [%s] found in PATH", strings.Join(candidates, ", "))
}
