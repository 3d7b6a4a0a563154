// Utilities for extracting account credentials from a browser "Copy as cURL" command.
package shared

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderRegex = regexp.MustCompile(`(?:-H|--header)\s+'([^']+)'|(?:-H|--header)\s+"([^"]+)"`)
	curlCookieRegex = regexp.MustCompile(`(?:-b|--cookie)\s+'([^']+)'|(?:-b|--cookie)\s+"([^"]+)"`)
	curlProxyRegex  = regexp.MustCompile(`(?:-x|--proxy)\s+'?([^'\s]+)'?`)
)

// CurlCredentials represents the parts of a cURL command needed to build an account.
type CurlCredentials struct {
	Headers map[string]string // Remaining request headers, keyed as written
	Cookie  string            // Session cookie header value
	Token   string            // Bearer token when the command targeted an API endpoint
	Proxy   string            // Proxy passed with -x/--proxy
}

// ParseCurlFile reads a .sh file containing a cURL command and extracts credentials.
func ParseCurlFile(filepath string) (*CurlCredentials, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}

	return ParseCurlCommand(content)
}

// ParseCurlCommand parses a cURL command string and extracts the session cookie, bearer token, proxy and headers.
func ParseCurlCommand(data []byte) (*CurlCredentials, error) {
	curlCmd := string(data)
	curlCmd = strings.ReplaceAll(curlCmd, "\\\n", " ")
	curlCmd = strings.ReplaceAll(curlCmd, "\\", "")

	creds := &CurlCredentials{Headers: make(map[string]string)}

	for _, match := range curlHeaderRegex.FindAllStringSubmatch(curlCmd, -1) {
		key, value, ok := splitHeader(firstGroup(match))
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "cookie":
			creds.Cookie = value
		case "authorization":
			if token, found := strings.CutPrefix(value, "Bearer "); found {
				creds.Token = strings.TrimSpace(token)
			}
		default:
			creds.Headers[key] = value
		}
	}

	if m := curlCookieRegex.FindStringSubmatch(curlCmd); len(m) > 1 && creds.Cookie == "" {
		creds.Cookie = firstGroup(m)
	}

	if m := curlProxyRegex.FindStringSubmatch(curlCmd); len(m) > 1 {
		creds.Proxy = m[1]
	}

	if creds.Cookie == "" && creds.Token == "" {
		return nil, fmt.Errorf("%w: no cookie or bearer token found in curl command", ErrMissingCredentials)
	}
	return creds, nil
}

// ToAccountTOML renders an [[accounts]] block for the config file.
func (c *CurlCredentials) ToAccountTOML(name, cookieFile string) string {
	var b strings.Builder
	b.WriteString("[[accounts]]\n")
	fmt.Fprintf(&b, "name = %q\n", name)
	switch {
	case cookieFile != "":
		fmt.Fprintf(&b, "cookie_file = %q\n", cookieFile)
	case c.Cookie != "":
		fmt.Fprintf(&b, "cookie = %q\n", c.Cookie)
	}
	if c.Token != "" && c.Cookie == "" {
		fmt.Fprintf(&b, "token = %q\n", c.Token)
	}
	if c.Proxy != "" {
		fmt.Fprintf(&b, "proxy = %q\n", c.Proxy)
	}
	return b.String()
}

func firstGroup(match []string) string {
	if match[1] != "" {
		return match[1]
	}
	return match[2]
}

func splitHeader(line string) (string, string, bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}
