package translate

import (
	"fmt"
	"strings"

	getopt "github.com/pborman/getopt/v2"
)

// Tier-4 emulators synthesize host scripting-shell (PowerShell-family)
// equivalents. Each is a pure (args, position) -> text function; stage
// position selects between the file-argument form and the pipe-reading form.

func emulateLs(args []string, _ StagePosition) (string, error) {
	opts := getopt.New()
	all := opts.Bool('a', "include dotfiles")
	long := opts.Bool('l', "long listing")
	if err := opts.Getopt(append([]string{"ls"}, args...), nil); err != nil {
		return "", fmt.Errorf("ls: %w", err)
	}

	target := "."
	if rest := opts.Args(); len(rest) > 0 {
		target = rest[0]
	}

	script := fmt.Sprintf("Get-ChildItem -Path %s", quoteArg(target))
	if *all {
		script += " -Force"
	}
	if *long {
		return script, nil
	}
	return script + " | Select-Object -ExpandProperty Name", nil
}

func emulateCat(args []string, pos StagePosition) (string, error) {
	files := nonFlagArgs(args)
	if len(files) == 0 {
		if pos.ReadsPipe() {
			return "$input", nil
		}
		return "", fmt.Errorf("cat: no input")
	}
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = quoteArg(f)
	}
	return fmt.Sprintf("Get-Content -Path %s", strings.Join(quoted, ",")), nil
}

func emulateGrep(args []string, pos StagePosition) (string, error) {
	var pattern string
	var files []string
	invert, ignoreCase := false, false

	rest := args
	for len(rest) > 0 {
		switch arg := rest[0]; {
		case arg == "-v":
			invert = true
		case arg == "-i":
			ignoreCase = true
		case arg == "-r" || arg == "-R" || arg == "-n" || arg == "-l" || arg == "--":
			// Accepted but approximated; the POSIX tier carries the exact
			// semantics for these.
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("grep: unsupported flag %s", arg)
		case pattern == "":
			pattern = arg
		default:
			files = append(files, arg)
		}
		rest = rest[1:]
	}
	if pattern == "" {
		return "", fmt.Errorf("grep: missing pattern")
	}

	script := fmt.Sprintf("Select-String -Pattern %s", quoteArg(pattern))
	if ignoreCase {
		// Select-String matches case-insensitively by default; -CaseSensitive
		// is the inverse toggle, so -i just keeps the default.
	} else {
		script += " -CaseSensitive"
	}
	if invert {
		script += " -NotMatch"
	}

	if pos.ReadsPipe() && len(files) == 0 {
		return "$input | " + script + " | ForEach-Object { $_.Line }", nil
	}
	if len(files) == 0 {
		return "", fmt.Errorf("grep: no input files")
	}
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = quoteArg(f)
	}
	return script + " -Path " + strings.Join(quoted, ",") + " | ForEach-Object { $_.Line }", nil
}

func emulateHead(args []string, pos StagePosition) (string, error) {
	opts := getopt.New()
	lines := opts.Int('n', 10, "line count")
	if err := opts.Getopt(append([]string{"head"}, args...), nil); err != nil {
		return "", fmt.Errorf("head: %w", err)
	}

	pick := fmt.Sprintf("Select-Object -First %d", *lines)
	if rest := opts.Args(); len(rest) > 0 {
		return fmt.Sprintf("Get-Content -Path %s | %s", quoteArg(rest[0]), pick), nil
	}
	if !pos.ReadsPipe() {
		return "", fmt.Errorf("head: no input")
	}
	return "$input | " + pick, nil
}

func emulateTail(args []string, pos StagePosition) (string, error) {
	opts := getopt.New()
	lines := opts.Int('n', 10, "line count")
	if err := opts.Getopt(append([]string{"tail"}, args...), nil); err != nil {
		return "", fmt.Errorf("tail: %w", err)
	}

	pick := fmt.Sprintf("Select-Object -Last %d", *lines)
	if rest := opts.Args(); len(rest) > 0 {
		return fmt.Sprintf("Get-Content -Path %s | %s", quoteArg(rest[0]), pick), nil
	}
	if !pos.ReadsPipe() {
		return "", fmt.Errorf("tail: no input")
	}
	return "$input | " + pick, nil
}

func emulateWc(args []string, pos StagePosition) (string, error) {
	countLines := false
	var files []string
	for _, arg := range args {
		switch arg {
		case "-l":
			countLines = true
		case "-w", "-c":
			countLines = false
		default:
			files = append(files, arg)
		}
	}

	measure := "Measure-Object -Line -Word -Character"
	field := ""
	if countLines {
		measure = "Measure-Object -Line"
		field = " | Select-Object -ExpandProperty Lines"
	}

	if len(files) > 0 {
		return fmt.Sprintf("Get-Content -Path %s | %s%s", quoteArg(files[0]), measure, field), nil
	}
	if !pos.ReadsPipe() {
		return "", fmt.Errorf("wc: no input")
	}
	return "$input | " + measure + field, nil
}

func emulateSort(args []string, pos StagePosition) (string, error) {
	reverse := false
	var files []string
	for _, arg := range args {
		switch {
		case arg == "-r":
			reverse = true
		case arg == "-n" || arg == "-u":
			// Approximations; exact numeric and unique semantics belong to
			// the POSIX tier.
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("sort: unsupported flag %s", arg)
		default:
			files = append(files, arg)
		}
	}

	script := "Sort-Object"
	if reverse {
		script += " -Descending"
	}
	if len(files) > 0 {
		return fmt.Sprintf("Get-Content -Path %s | %s", quoteArg(files[0]), script), nil
	}
	if !pos.ReadsPipe() {
		return "", fmt.Errorf("sort: no input")
	}
	return "$input | " + script, nil
}

func emulateUniq(args []string, pos StagePosition) (string, error) {
	if len(nonFlagArgs(args)) > 0 {
		return fmt.Sprintf("Get-Content -Path %s | Get-Unique", quoteArg(nonFlagArgs(args)[0])), nil
	}
	if !pos.ReadsPipe() {
		return "", fmt.Errorf("uniq: no input")
	}
	return "$input | Get-Unique", nil
}

func emulateFind(args []string, _ StagePosition) (string, error) {
	root := "."
	namePattern := ""
	typeFilter := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-name", "-iname":
			if i+1 >= len(args) {
				return "", fmt.Errorf("find: missing argument to %s", args[i])
			}
			i++
			namePattern = args[i]
		case "-type":
			if i+1 >= len(args) {
				return "", fmt.Errorf("find: missing argument to -type")
			}
			i++
			typeFilter = args[i]
		case "-exec", "-delete", "-prune":
			// Only the POSIX tier runs -exec and friends.
			return "", fmt.Errorf("find: %s needs the posix shell", args[i])
		default:
			if !strings.HasPrefix(args[i], "-") {
				root = args[i]
			}
		}
	}

	script := fmt.Sprintf("Get-ChildItem -Path %s -Recurse", quoteArg(root))
	switch typeFilter {
	case "f":
		script += " -File"
	case "d":
		script += " -Directory"
	}
	if namePattern != "" {
		script += " -Filter " + quoteArg(namePattern)
	}
	return script + " | Select-Object -ExpandProperty FullName", nil
}

func emulateMkdir(args []string, _ StagePosition) (string, error) {
	dirs := nonFlagArgs(args)
	if len(dirs) == 0 {
		return "", fmt.Errorf("mkdir: missing operand")
	}
	var parts []string
	for _, d := range dirs {
		parts = append(parts, fmt.Sprintf("New-Item -ItemType Directory -Force -Path %s | Out-Null", quoteArg(d)))
	}
	return strings.Join(parts, "; "), nil
}

func emulateRm(args []string, _ StagePosition) (string, error) {
	recursive := false
	force := false
	var files []string
	for _, arg := range args {
		switch arg {
		case "-r", "-R", "-rf", "-fr":
			recursive = true
			force = force || strings.Contains(arg, "f")
		case "-f":
			force = true
		default:
			files = append(files, arg)
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("rm: missing operand")
	}
	script := "Remove-Item"
	if recursive {
		script += " -Recurse"
	}
	if force {
		script += " -Force"
	}
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = quoteArg(f)
	}
	return script + " -Path " + strings.Join(quoted, ","), nil
}

func emulateCp(args []string, _ StagePosition) (string, error) {
	recursive := false
	var files []string
	for _, arg := range args {
		switch arg {
		case "-r", "-R", "-a":
			recursive = true
		default:
			files = append(files, arg)
		}
	}
	if len(files) < 2 {
		return "", fmt.Errorf("cp: missing destination")
	}
	script := "Copy-Item"
	if recursive {
		script += " -Recurse"
	}
	dst := files[len(files)-1]
	srcs := make([]string, len(files)-1)
	for i, f := range files[:len(files)-1] {
		srcs[i] = quoteArg(f)
	}
	return fmt.Sprintf("%s -Path %s -Destination %s", script, strings.Join(srcs, ","), quoteArg(dst)), nil
}

func emulateMv(args []string, _ StagePosition) (string, error) {
	files := nonFlagArgs(args)
	if len(files) < 2 {
		return "", fmt.Errorf("mv: missing destination")
	}
	dst := files[len(files)-1]
	srcs := make([]string, len(files)-1)
	for i, f := range files[:len(files)-1] {
		srcs[i] = quoteArg(f)
	}
	return fmt.Sprintf("Move-Item -Path %s -Destination %s -Force", strings.Join(srcs, ","), quoteArg(dst)), nil
}

func emulateTouch(args []string, _ StagePosition) (string, error) {
	files := nonFlagArgs(args)
	if len(files) == 0 {
		return "", fmt.Errorf("touch: missing operand")
	}
	var parts []string
	for _, f := range files {
		q := quoteArg(f)
		parts = append(parts, fmt.Sprintf(
			"if (Test-Path %s) { (Get-Item %s).LastWriteTime = Get-Date } else { New-Item -ItemType File -Path %s | Out-Null }",
			q, q, q))
	}
	return strings.Join(parts, "; "), nil
}

func emulateWhich(args []string, _ StagePosition) (string, error) {
	names := nonFlagArgs(args)
	if len(names) == 0 {
		return "", fmt.Errorf("which: missing operand")
	}
	return fmt.Sprintf("Get-Command %s | Select-Object -ExpandProperty Source", quoteArg(names[0])), nil
}

func emulateDate(args []string, _ StagePosition) (string, error) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "+") {
			// Format strings differ per shell; only the POSIX tier honors
			// them exactly.
			return "", fmt.Errorf("date: format strings need the posix shell")
		}
	}
	return "Get-Date -UFormat '%a %b %e %H:%M:%S %Z %Y'", nil
}

func emulateTest(args []string, _ StagePosition) (string, error) {
	// Strip the closing bracket of the [ expr ] spelling.
	if len(args) > 0 && args[len(args)-1] == "]" {
		args = args[:len(args)-1]
	}
	cond, err := testCondition(args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("if (%s) { exit 0 } else { exit 1 }", cond), nil
}

// testCondition converts a test expression to its scripting-shell form.
func testCondition(args []string) (string, error) {
	switch len(args) {
	case 1:
		return fmt.Sprintf("'%s' -ne ''", escapeSingle(args[0])), nil
	case 2:
		operand := quoteArg(args[1])
		switch args[0] {
		case "-f":
			return fmt.Sprintf("Test-Path -PathType Leaf %s", operand), nil
		case "-d":
			return fmt.Sprintf("Test-Path -PathType Container %s", operand), nil
		case "-e":
			return fmt.Sprintf("Test-Path %s", operand), nil
		case "-s":
			return fmt.Sprintf("(Test-Path %s) -and ((Get-Item %s).Length -gt 0)", operand, operand), nil
		case "-z":
			return fmt.Sprintf("'%s' -eq ''", escapeSingle(args[1])), nil
		case "-n":
			return fmt.Sprintf("'%s' -ne ''", escapeSingle(args[1])), nil
		case "!":
			inner, err := testCondition(args[1:])
			if err != nil {
				return "", err
			}
			return "-not (" + inner + ")", nil
		}
	case 3:
		left, right := escapeSingle(args[0]), escapeSingle(args[2])
		switch args[1] {
		case "=", "==":
			return fmt.Sprintf("'%s' -eq '%s'", left, right), nil
		case "!=":
			return fmt.Sprintf("'%s' -ne '%s'", left, right), nil
		case "-eq":
			return fmt.Sprintf("%s -eq %s", args[0], args[2]), nil
		case "-ne":
			return fmt.Sprintf("%s -ne %s", args[0], args[2]), nil
		case "-lt":
			return fmt.Sprintf("%s -lt %s", args[0], args[2]), nil
		case "-le":
			return fmt.Sprintf("%s -le %s", args[0], args[2]), nil
		case "-gt":
			return fmt.Sprintf("%s -gt %s", args[0], args[2]), nil
		case "-ge":
			return fmt.Sprintf("%s -ge %s", args[0], args[2]), nil
		}
	}
	return "", fmt.Errorf("test: unsupported expression %q", strings.Join(args, " "))
}

func escapeSingle(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func nonFlagArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			out = append(out, arg)
		}
	}
	return out
}
