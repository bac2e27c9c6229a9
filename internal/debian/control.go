// Package debian reads package metadata out of an installed Debian tree.
package debian

import (
	"bufio"
	"io"
	"strings"
)

// Paragraph is one stanza of a deb822 control file
type Paragraph map[string]string

// ParseControl parses deb822 formatted data such as /var/lib/dpkg/status
// into its paragraphs. Field names are kept as written.
func ParseControl(r io.Reader) ([]Paragraph, error) {
	var paragraphs []Paragraph
	current := Paragraph{}
	var currentKey string
	var currentValue strings.Builder

	flush := func() {
		if currentKey != "" {
			current[currentKey] = currentValue.String()
			currentKey = ""
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Blank line ends a paragraph
		if strings.TrimSpace(line) == "" {
			flush()
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = Paragraph{}
			}
			continue
		}

		// Handle continuation lines (start with space)
		if line[0] == ' ' || line[0] == '\t' {
			if currentKey != "" {
				currentValue.WriteString("\n")
				currentValue.WriteString(strings.TrimSpace(line))
			}
			continue
		}

		// Save previous key-value pair
		flush()

		// Parse new key-value pair
		if key, value, ok := strings.Cut(line, ":"); ok {
			currentKey = strings.TrimSpace(key)
			currentValue.Reset()
			currentValue.WriteString(strings.TrimSpace(value))
		}
	}

	flush()
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs, scanner.Err()
}

// Installed reports whether a dpkg status paragraph describes an installed package.
func (p Paragraph) Installed() bool {
	status := strings.Fields(p["Status"])
	return len(status) == 3 && status[2] == "installed"
}

// FindInstalled returns the installed paragraph for pkg.
func FindInstalled(paragraphs []Paragraph, pkg string) (Paragraph, bool) {
	for _, p := range paragraphs {
		if p["Package"] == pkg && p.Installed() {
			return p, true
		}
	}
	return nil, false
}

// UpstreamVersion strips the epoch and Debian revision from a package
// version: "1:2.36-9+deb12u4" becomes "2.36".
func UpstreamVersion(version string) string {
	if _, rest, ok := strings.Cut(version, ":"); ok {
		version = rest
	}
	if i := strings.LastIndex(version, "-"); i > 0 {
		version = version[:i]
	}
	return version
}
