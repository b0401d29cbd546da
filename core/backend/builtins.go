package backend

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// BuiltinFunc is one direct-mapping primitive. It receives the request for
// its argv, environment and working directory, writes to the supplied
// streams, and returns an exit code.
type BuiltinFunc func(req Request, stdin io.Reader, stdout, stderr io.Writer) int

// Builtins holds every direct-mapping primitive, keyed by command name.
var Builtins = map[string]BuiltinFunc{
	"pwd":      builtinPwd,
	"echo":     builtinEcho,
	"true":     builtinTrue,
	"false":    builtinFalse,
	"basename": builtinBasename,
	"dirname":  builtinDirname,
	"seq":      builtinSeq,
	"env":      builtinEnv,
	"printenv": builtinEnv,
	"sleep":    builtinSleep,
	"yes":      builtinYes,
	"wc":       builtinWc,
}

func builtinPwd(req Request, _ io.Reader, stdout, _ io.Writer) int {
	dir := req.Dir
	if dir == "" {
		dir = "/"
	}
	fmt.Fprintln(stdout, dir)
	return 0
}

func builtinEcho(req Request, _ io.Reader, stdout, _ io.Writer) int {
	args := req.Argv[1:]
	noNewline := false
	escapes := false
	for len(args) > 0 {
		switch args[0] {
		case "-n":
			noNewline = true
		case "-e":
			escapes = true
		case "-E":
			escapes = false
		default:
			goto text
		}
		args = args[1:]
	}
text:
	out := strings.Join(args, " ")
	if escapes {
		out = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`).Replace(out)
	}
	if noNewline {
		fmt.Fprint(stdout, out)
	} else {
		fmt.Fprintln(stdout, out)
	}
	return 0
}

func builtinTrue(Request, io.Reader, io.Writer, io.Writer) int  { return 0 }
func builtinFalse(Request, io.Reader, io.Writer, io.Writer) int { return 1 }

func builtinBasename(req Request, _ io.Reader, stdout, stderr io.Writer) int {
	if len(req.Argv) < 2 {
		fmt.Fprintln(stderr, "basename: missing operand")
		return 1
	}
	name := path.Base(req.Argv[1])
	if len(req.Argv) > 2 {
		name = strings.TrimSuffix(name, req.Argv[2])
	}
	fmt.Fprintln(stdout, name)
	return 0
}

func builtinDirname(req Request, _ io.Reader, stdout, stderr io.Writer) int {
	if len(req.Argv) < 2 {
		fmt.Fprintln(stderr, "dirname: missing operand")
		return 1
	}
	fmt.Fprintln(stdout, path.Dir(req.Argv[1]))
	return 0
}

func builtinSeq(req Request, _ io.Reader, stdout, stderr io.Writer) int {
	first, step, last := 1, 1, 1
	var err error
	nums := req.Argv[1:]
	switch len(nums) {
	case 1:
		last, err = strconv.Atoi(nums[0])
	case 2:
		if first, err = strconv.Atoi(nums[0]); err == nil {
			last, err = strconv.Atoi(nums[1])
		}
	case 3:
		if first, err = strconv.Atoi(nums[0]); err == nil {
			if step, err = strconv.Atoi(nums[1]); err == nil {
				last, err = strconv.Atoi(nums[2])
			}
		}
	default:
		fmt.Fprintln(stderr, "seq: missing operand")
		return 1
	}
	if err != nil || step == 0 {
		fmt.Fprintln(stderr, "seq: invalid operand")
		return 1
	}
	if step > 0 {
		for i := first; i <= last; i += step {
			fmt.Fprintln(stdout, i)
		}
	} else {
		for i := first; i >= last; i += step {
			fmt.Fprintln(stdout, i)
		}
	}
	return 0
}

func builtinEnv(req Request, _ io.Reader, stdout, _ io.Writer) int {
	for _, kv := range req.Env {
		fmt.Fprintln(stdout, kv)
	}
	return 0
}

func builtinSleep(req Request, _ io.Reader, _, stderr io.Writer) int {
	if len(req.Argv) < 2 {
		fmt.Fprintln(stderr, "sleep: missing operand")
		return 1
	}
	secs, err := strconv.ParseFloat(strings.TrimSuffix(req.Argv[1], "s"), 64)
	if err != nil {
		fmt.Fprintf(stderr, "sleep: invalid time interval %q\n", req.Argv[1])
		return 1
	}
	time.Sleep(time.Duration(secs * float64(time.Second)))
	return 0
}

func builtinYes(req Request, _ io.Reader, stdout, _ io.Writer) int {
	word := "y"
	if len(req.Argv) > 1 {
		word = strings.Join(req.Argv[1:], " ")
	}
	// Bounded: an unbounded yes would never return control to the engine.
	for i := 0; i < 4096; i++ {
		if _, err := fmt.Fprintln(stdout, word); err != nil {
			break
		}
	}
	return 0
}

func builtinWc(req Request, stdin io.Reader, stdout, stderr io.Writer) int {
	// Direct wc only serves the piped form; file arguments take another tier.
	countLines, countWords, countBytes := false, false, false
	for _, arg := range req.Argv[1:] {
		switch arg {
		case "-l":
			countLines = true
		case "-w":
			countWords = true
		case "-c":
			countBytes = true
		default:
			fmt.Fprintf(stderr, "wc: unsupported operand %q\n", arg)
			return 1
		}
	}
	if !countLines && !countWords && !countBytes {
		countLines, countWords, countBytes = true, true, true
	}
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	var lines, words, bytes int
	reader := bufio.NewReader(stdin)
	for {
		line, err := reader.ReadString('\n')
		bytes += len(line)
		if strings.HasSuffix(line, "\n") {
			lines++
		}
		words += len(strings.Fields(line))
		if err != nil {
			break
		}
	}

	var cols []string
	if countLines {
		cols = append(cols, strconv.Itoa(lines))
	}
	if countWords {
		cols = append(cols, strconv.Itoa(words))
	}
	if countBytes {
		cols = append(cols, strconv.Itoa(bytes))
	}
	fmt.Fprintln(stdout, strings.Join(cols, " "))
	return 0
}
