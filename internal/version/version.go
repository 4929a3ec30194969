package version

import "fmt"

var (
	App       string = "QBGate"
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	BuildOS   string
	BuildArch string
)

// PrintVersion prints the version information
func PrintVersion() {
	fmt.Println(String())
	if BuildTime != "" {
		fmt.Printf("Build time: %s\n", BuildTime)
	}
	if GoVersion != "" {
		fmt.Printf("Go version: %s\n", GoVersion)
	}
	if BuildOS != "" && BuildArch != "" {
		fmt.Printf("Built for: %s/%s\n", BuildOS, BuildArch)
	}
}

// String returns "<app> <version> (<short commit>)" for logs and /health.
func String() string {
	if commit := shortCommit(); commit != "" {
		return fmt.Sprintf("%s %s (%s)", App, Get(), commit)
	}
	return fmt.Sprintf("%s %s", App, Get())
}

// Get returns the release version, or "dev" for local builds.
func Get() string {
	if Version != "" {
		return Version
	}
	return "dev"
}

func shortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}
