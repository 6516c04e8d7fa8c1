package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"pyrite/report"
	"pyrite/session"
)

const usage = `Usage: pyrite [flags|options] <path to function listing>

Flags:
------
-h, --help    Displays usage information (ie. this text).

Options:
--------
-o,  --outpath    Sets the path for the emitted LLVM IR.  Defaults to standard
                  output if unspecified.
-ll, --loglevel   Sets the compiler's log-level.  Valid values are:
                    - "verbose" for outputting all messages
                    - "warn" for outputting errors and warnings
                    - "error" for outputting errors only (default)
                    - "silent" for no output
`

// Prints the usage message and exits with the given exit code.
func printUsage(exitCode int) {
	fmt.Print(usage, "\n")
	os.Exit(exitCode)
}

func argumentError(message string, args ...interface{}) {
	fmt.Print("argument error: ", fmt.Sprintf(message, args...), "\n\n")
	printUsage(1)
}

func main() {
	var listingPath, outPath string
	logLevel := "error"

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-h", "--help":
			printUsage(0)
		case "-o", "--outpath":
			if i+1 >= len(args) {
				argumentError("option `%s` requires a value", arg)
			}
			i++
			outPath = args[i]
		case "-ll", "--loglevel":
			if i+1 >= len(args) {
				argumentError("option `%s` requires a value", arg)
			}
			i++
			logLevel = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				argumentError("unknown flag or option `%s`", arg)
			}
			if listingPath != "" {
				argumentError("multiple listing paths supplied")
			}
			listingPath = arg
		}
	}

	if listingPath == "" {
		argumentError("missing path to function listing")
	}

	report.Initialize(logLevel)

	if !compile(listingPath, outPath) {
		os.Exit(1)
	}
}

// compile runs one listing through a fresh session and writes the module.
func compile(listingPath, outPath string) bool {
	fn, argTypes, retType, noLock, err := loadFunction(listingPath)
	if err != nil {
		report.ReportError(err)
		return false
	}

	s := session.New(session.Config{})
	cf, err := s.Compile(session.Request{
		Fn:             fn,
		Args:           argTypes,
		DeclaredReturn: retType,
		NoLock:         noLock,
	})
	if err != nil {
		report.ReportError(err)
		return false
	}

	report.ReportInfo("Compiled", fmt.Sprintf("%s%s -> %s", cf.Name, cf.Signature.Repr(), cf.EntryName))

	text := s.Module().String()
	if outPath == "" {
		fmt.Print(text)
		return true
	}

	if err := ioutil.WriteFile(outPath, []byte(text), 0644); err != nil {
		report.ReportError(fmt.Errorf("unable to write output to `%s`: %s", outPath, err.Error()))
		return false
	}

	report.ReportInfo("Wrote", outPath)
	return true
}
