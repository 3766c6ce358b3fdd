package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/lendhook/internal/errors"
)

// CheckCommandAllowed enforces the --enable-commands allowlist. An entry
// allows its exact command path and every subcommand below it, so "vaults"
// allows "vaults add". An empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if path == entry || strings.HasPrefix(path, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy: "+path)
}

func normalize(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
