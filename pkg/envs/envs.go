// Package envs reads the handful of environment variables that configure a
// Blimp run: sysroot location, concurrency, cross-build triplets, and debug
// behavior.
package envs

import (
	"os"
	"strconv"
	"strings"
)

const (
	sysrootVar   = "SYSROOT"
	localRepoVar = "LOCAL_REPO"
	jobsVar      = "JOBS"
	buildVar     = "BUILD"
	hostVar      = "HOST"
	targetVar    = "TARGET"
	debugVar     = "BLIMP_DEBUG"
	ccVar        = "CC"
)

// Sysroot returns SYSROOT, defaulting to "/".
func Sysroot() string {
	if v := os.Getenv(sysrootVar); v != "" {
		return v
	}
	return "/"
}

// LocalRepos returns LOCAL_REPO split on ':' into its component paths,
// defaulting to fallback if unset. Empty path segments are dropped.
func LocalRepos(fallback string) []string {
	v := os.Getenv(localRepoVar)
	if v == "" {
		v = fallback
	}
	if v == "" {
		return nil
	}

	var paths []string
	for _, p := range strings.Split(v, ":") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Jobs returns JOBS parsed as a positive int, and false if unset or invalid.
func Jobs() (int, bool) {
	v := os.Getenv(jobsVar)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Build returns BUILD, the host triplet override.
func Build() string { return os.Getenv(buildVar) }

// Host returns HOST, defaulting to fallback if unset.
func Host(fallback string) string {
	if v := os.Getenv(hostVar); v != "" {
		return v
	}
	return fallback
}

// Target returns TARGET, defaulting to fallback if unset.
func Target(fallback string) string {
	if v := os.Getenv(targetVar); v != "" {
		return v
	}
	return fallback
}

// CC returns CC, defaulting to "cc" if unset.
func CC() string {
	if v := os.Getenv(ccVar); v != "" {
		return v
	}
	return "cc"
}

// Debug reports whether BLIMP_DEBUG is set to a truthy value. Debug mode
// skips builder.Process.Cleanup so staging directories survive for
// inspection.
func Debug() bool {
	v := os.Getenv(debugVar)
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
