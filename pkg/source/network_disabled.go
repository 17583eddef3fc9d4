//go:build !network

// Without the network build tag, Url and Git origins fail fast instead of
// reaching out over the network.
package source

import (
	"fmt"

	"github.com/blimp-pm/blimp/pkg/blimperr"
)

func fetchURL(url, dest string) error {
	return fmt.Errorf("%w: %s", blimperr.ErrNetworkDisabled, url)
}

func fetchGit(url, branch, dest string) error {
	return fmt.Errorf("%w: %s", blimperr.ErrNetworkDisabled, url)
}
