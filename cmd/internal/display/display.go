// Package display renders scan progress and results for the terminal.
//
// Every function writes to the supplied io.Writer so commands can redirect
// output; colors follow fatih/color's NoColor detection.
package display

import (
	"fmt"
	"io"

	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
	"github.com/fatih/color"
)

var (
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
)

// Banner announces the start of a scan.
func Banner(w io.Writer, target string) {
	fmt.Fprintln(w)
	blue.Fprintf(w, "Starting security scan of %s\n", target)
	fmt.Fprintln(w)
}

// Finding prints one vulnerability block: kind, url, severity, then every
// detail field in key order.
func Finding(w io.Writer, f types.Finding) {
	red.Fprintln(w, "[VULNERABILITY FOUND]")
	fmt.Fprintf(w, "type: %s\n", f.Kind)
	fmt.Fprintf(w, "url: %s\n", f.URL)
	fmt.Fprintf(w, "severity: %s\n", ColorSeverity(f.Severity))
	for _, k := range f.DetailKeys() {
		fmt.Fprintf(w, "%s: %s\n", k, f.Details[k])
	}
	fmt.Fprintln(w)
}

// Summary prints the closing totals of a scan.
func Summary(w io.Writer, result *types.ScanResult) {
	fmt.Fprintln(w)
	if result.Cancelled {
		yellow.Fprintln(w, "Scan interrupted, results are partial")
	}
	green.Fprintln(w, "Scan Complete!")
	fmt.Fprintf(w, "Total URLs scanned: %d\n", result.Summary.URLsVisited)
	fmt.Fprintf(w, "Vulnerabilities found: %d\n", result.Summary.Total)

	if result.Summary.Total == 0 {
		return
	}
	for _, kind := range types.AllKinds {
		if n := result.Summary.ByKind[kind]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", kind, n)
		}
	}
}

// ReportSaved confirms where the machine-readable report went.
func ReportSaved(w io.Writer, path string) {
	fmt.Fprintf(w, "Results saved to: %s\n", path)
}

// ColorSeverity returns a colorized severity string
func ColorSeverity(severity types.Severity) string {
	switch severity {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRITICAL")
	case types.SeverityHigh:
		return color.New(color.FgRed).Sprint("HIGH")
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint("MEDIUM")
	case types.SeverityLow:
		return color.New(color.FgCyan).Sprint("LOW")
	case types.SeverityInfo:
		return color.New(color.FgWhite).Sprint("INFO")
	default:
		return string(severity)
	}
}
