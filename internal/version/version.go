package version

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const Dev = "dev"

// Load reads the release version from the file at path. A missing or
// malformed file yields Dev.
func Load(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dev
	}
	v := strings.TrimSpace(string(data))
	if _, err := ExtractMajorVersion(v); err != nil {
		return Dev
	}
	return v
}

// UserAgent identifies a fleetshare component and its release in outgoing
// requests.
func UserAgent(component, version string) string {
	if version == "" {
		version = Dev
	}
	return fmt.Sprintf("fleetshare-%s/%s", component, version)
}

func ExtractMajorVersion(version string) (int, error) {
	if version == "" {
		return 0, fmt.Errorf("empty version string")
	}

	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid major version: %v", err)
	}

	if major < 0 {
		return 0, fmt.Errorf("major version cannot be negative")
	}

	return major, nil
}
