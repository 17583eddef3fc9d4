package remote

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadRemotes reads the sysroot's remotes file, one host per line, and
// returns the set of known remote hosts. A missing file means no remotes
// are configured yet.
func LoadRemotes(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("reading remotes file %s: %w", path, err)
	}
	defer f.Close()

	hosts := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		host := strings.TrimSpace(scanner.Text())
		if host == "" {
			continue
		}
		hosts[host] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading remotes file %s: %w", path, err)
	}
	return hosts, nil
}

// SaveRemotes writes hosts to the sysroot's remotes file, one per line.
func SaveRemotes(path string, hosts map[string]struct{}) error {
	var b strings.Builder
	for host := range hosts {
		b.WriteString(host)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing remotes file %s: %w", path, err)
	}
	return nil
}
