// Package flagx lets several components each parse their own flags out of
// one shared command line.
package flagx

import (
	"flag"
	"io"
	"slices"
	"strings"
)

// FilterArgs keeps only the flags listed in allowed, with their values.
// A value is either joined to the flag with '=' or is the next argument,
// provided that argument does not itself start with '-'.
func FilterArgs(args []string, allowed []string) []string {
	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		name, _, joined := strings.Cut(args[i], "=")
		if !strings.HasPrefix(name, "-") || !slices.Contains(allowed, name) {
			continue
		}
		filtered = append(filtered, args[i])
		if !joined && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigPath returns the JSON config file named by -c or -config in args,
// or "" when neither is set. The last occurrence wins.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
