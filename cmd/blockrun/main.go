// blockrun CLI - runs a block program document against the standard modules
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	configDir := flag.String("config", "", "Directory holding blockrun.toml (default: search upward from the document)")
	verbosity := flag.Int("v", 0, "Log verbosity, overrides the config file when given (-4..4)")
	traceOn := flag.Bool("trace", false, "Record the run in the trace database")
	traceDB := flag.String("trace-db", "", "Trace database path (default from config)")
	entry := flag.String("entry", "", "Comma-separated entry block types (default from config)")
	maxDepth := flag.Int("depth", 0, "Maximum block nesting depth (default from config)")
	toYAML := flag.Bool("yaml", false, "Print the document as YAML instead of running it")
	listRuns := flag.Bool("runs", false, "List recorded runs and exit")
	showSteps := flag.String("steps", "", "Print the steps of a recorded run and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: blockrun [options] <document.xml|document.yaml>\n\n")
		fmt.Fprintf(os.Stderr, "Parses a block program and runs its entry script.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  blockrun counter.xml              # Run, print the final heap\n")
		fmt.Fprintf(os.Stderr, "  blockrun -trace counter.xml       # Run and record every step\n")
		fmt.Fprintf(os.Stderr, "  blockrun -yaml counter.xml        # Convert to the YAML form\n")
		fmt.Fprintf(os.Stderr, "  blockrun -runs                    # List recorded runs\n")
		fmt.Fprintf(os.Stderr, "  blockrun -steps <run-id>          # Show one recorded run\n")
	}
	flag.Parse()

	var docPath string
	if flag.NArg() > 0 {
		docPath = flag.Arg(0)
	}

	cfg, err := loadConfig(*configDir, docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if flagPassed(flag.CommandLine, "v") {
		cfg.Log.Verbosity = *verbosity
	}
	if *traceOn {
		cfg.Trace.Enabled = true
	}
	if *traceDB != "" {
		if cfg.Trace.DB, err = filepath.Abs(*traceDB); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *entry != "" {
		cfg.Engine.EntryTypes = strings.Split(*entry, ",")
	}
	if *maxDepth > 0 {
		cfg.Engine.MaxDepth = *maxDepth
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if logFile := cfg.LogFilePath(); logFile != "" {
		commonlog.Configure(cfg.Log.Verbosity, &logFile)
	} else {
		commonlog.Configure(cfg.Log.Verbosity, nil)
	}

	switch {
	case *listRuns:
		err = printRuns(cfg, os.Stdout)
	case *showSteps != "":
		err = printSteps(cfg, *showSteps, os.Stdout)
	case docPath == "":
		flag.Usage()
		os.Exit(2)
	case *toYAML:
		err = printYAML(docPath, os.Stdout)
	default:
		err = runDocument(cfg, docPath, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagPassed reports whether name was set on the command line, as opposed
// to holding its default.
func flagPassed(fs *flag.FlagSet, name string) bool {
	passed := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}
