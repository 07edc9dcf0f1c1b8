package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// TargetValidationResult contains the result of target validation
type TargetValidationResult struct {
	Valid    bool
	URL      string
	Host     string
	Private  bool
	Warnings []string
	Error    error
}

// ValidateTarget checks that target is an absolute http(s) URL the crawler
// can start from. The URL is returned as given: the crawl scope is a literal
// prefix of it, so it is never rewritten.
func ValidateTarget(target string) *TargetValidationResult {
	result := &TargetValidationResult{
		Warnings: []string{},
	}

	target = strings.TrimSpace(target)
	if target == "" {
		result.Error = fmt.Errorf("target cannot be empty")
		return result
	}

	parsedURL, err := url.Parse(target)
	if err != nil {
		result.Error = fmt.Errorf("invalid URL format: %w", err)
		return result
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		result.Error = fmt.Errorf("target %q must be an http or https URL", target)
		return result
	}
	if parsedURL.Host == "" {
		result.Error = fmt.Errorf("target %q is missing a host", target)
		return result
	}

	result.URL = target
	result.Host = parsedURL.Hostname()
	result.Valid = true

	if isPrivateTarget(result.Host) {
		result.Private = true
		result.Warnings = append(result.Warnings, "Target is on a private or local network - make sure you are authorized to test it")
	}
	if parsedURL.Fragment != "" {
		result.Warnings = append(result.Warnings, "URL fragment is kept in the crawl scope; discovered links never carry one")
	}
	if parsedURL.RawQuery == "" && !strings.HasSuffix(parsedURL.Path, "/") && parsedURL.Path != "" {
		result.Warnings = append(result.Warnings, "Target path has no trailing slash; sibling paths sharing its prefix are in scope")
	}

	return result
}

// isPrivateTarget checks if host is localhost or private network
func isPrivateTarget(host string) bool {
	lower := strings.ToLower(host)

	if lower == "localhost" {
		return true
	}

	privateTLDs := []string{
		".local",
		".internal",
		".lan",
		".test",
		".localhost",
	}
	for _, tld := range privateTLDs {
		if strings.HasSuffix(lower, tld) {
			return true
		}
	}

	return isPrivateHost(lower)
}

// isPrivateHost checks if a hostname/IP is private
func isPrivateHost(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
