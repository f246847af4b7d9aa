package deploy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SSHConfig represents parsed SSH configuration for a host.
type SSHConfig struct {
	Host          string
	HostName      string
	User          string
	IdentityFile  string
	IdentityAgent string
	Port          string
}

// ParseSSHConfig reads and parses ~/.ssh/config for the given host.
// Returns nil without error when no config file exists or no block
// matches the host.
func ParseSSHConfig(host string) (*SSHConfig, error) {
	return ParseSSHConfigFrom(host, "")
}

// ParseSSHConfigFrom reads and parses an SSH config file for the given host.
// If configPath is empty, uses ~/.ssh/config.
func ParseSSHConfigFrom(host, configPath string) (*SSHConfig, error) {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}

	if configPath == "" {
		if homeDir == "" {
			return nil, fmt.Errorf("failed to locate home directory")
		}
		configPath = filepath.Join(homeDir, ".ssh", "config")
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open SSH config: %w", err)
	}
	defer file.Close()

	return parseSSHConfig(file, host, homeDir)
}

// parseSSHConfig scans the config for the first Host block matching host
// and collects its keywords. Later blocks never override an earlier match,
// mirroring ssh's first-match-wins behavior for these keywords.
func parseSSHConfig(r io.Reader, host, homeDir string) (*SSHConfig, error) {
	config := &SSHConfig{Host: host}
	inMatchingHost := false
	foundMatch := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		keyword := strings.ToLower(parts[0])
		value := strings.Join(parts[1:], " ")

		if keyword == "host" {
			// A new Host line closes the matching block.
			if inMatchingHost {
				return config, nil
			}
			for _, pattern := range parts[1:] {
				if MatchHost(host, pattern) {
					inMatchingHost = true
					foundMatch = true
					break
				}
			}
			continue
		}

		if !inMatchingHost {
			continue
		}

		switch keyword {
		case "hostname":
			config.HostName = value
		case "user":
			config.User = value
		case "identityfile":
			config.IdentityFile = expandHome(value, homeDir)
		case "port":
			config.Port = value
		case "identityagent":
			config.IdentityAgent = expandHome(strings.Trim(value, `"`), homeDir)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SSH config: %w", err)
	}

	if !foundMatch {
		return nil, nil
	}
	return config, nil
}

// expandHome replaces a leading ~/ with the home directory.
func expandHome(path, homeDir string) string {
	if strings.HasPrefix(path, "~/") && homeDir != "" {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// MatchHost checks if the target host matches the SSH config host pattern.
// Patterns support the ssh_config wildcards: * matches any run of
// characters and ? matches exactly one.
func MatchHost(target, pattern string) bool {
	if pattern == "" {
		return target == ""
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(target); i++ {
			if MatchHost(target[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '?':
		return target != "" && MatchHost(target[1:], pattern[1:])
	default:
		return target != "" && target[0] == pattern[0] && MatchHost(target[1:], pattern[1:])
	}
}

// ResolveSSHTarget resolves SSH connection details using ~/.ssh/config.
// A user@host target is split first; explicit user and keyPath arguments
// override whatever the config supplies.
// Returns: hostname, user, keyPath, identityAgent, error.
func ResolveSSHTarget(target, user, keyPath string) (string, string, string, string, error) {
	targetHost := target
	targetUser := user
	if strings.Contains(target, "@") {
		parts := strings.SplitN(target, "@", 2)
		targetUser = parts[0]
		targetHost = parts[1]
	}

	config, err := ParseSSHConfig(targetHost)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to parse SSH config: %w", err)
	}

	if config == nil {
		return targetHost, targetUser, keyPath, "", nil
	}

	finalHost := targetHost
	if config.HostName != "" {
		finalHost = config.HostName
	}

	finalUser := targetUser
	if finalUser == "" && config.User != "" {
		finalUser = config.User
	}

	finalKey := keyPath
	if finalKey == "" && config.IdentityFile != "" {
		finalKey = config.IdentityFile
	}

	return finalHost, finalUser, finalKey, config.IdentityAgent, nil
}
