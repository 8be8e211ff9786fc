package main

import "strings"

// legacyFlags maps the single-dash spellings used by the backup daemon to
// their long flag names.
var legacyFlags = map[string]string{
	"-clean":               "--clean",
	"-skip_users_recovery": "--skip-users-recovery",
}

// normalizeArgs rewrites legacy flags. A legacy flag takes its value from
// the next argument unless that argument is another flag.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		long, ok := legacyFlags[name]
		if !ok {
			out = append(out, args[i])
			continue
		}
		if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			value, hasValue = args[i+1], true
			i++
		}
		if hasValue {
			out = append(out, long+"="+value)
		} else {
			out = append(out, long)
		}
	}
	return out
}
