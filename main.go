package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"l25/pkg/config"
	"l25/pkg/session"
	"l25/pkg/utils"
	"l25/pkg/vm"
	"l25/pkg/watch"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad environment: %v\n", err)
		os.Exit(2)
	}
	cfg.Bind(flag.CommandLine)

	inPath := flag.String("in", "", "l25 source file (or first argument)")
	runCode := flag.String("run-code", "", "run a saved instruction listing instead of compiling")
	watchMode := flag.Bool("watch", false, "recompile and rerun whenever the source changes")
	corePath := flag.String("core", "", "write a machine snapshot here when the program faults")
	inspectPath := flag.String("inspect", "", "print a machine snapshot and exit")
	flag.Parse()

	if *inPath == "" && flag.NArg() > 0 {
		*inPath = flag.Arg(0)
	}

	if *inspectPath != "" {
		m, err := vm.LoadSnapshot(*inspectPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load snapshot %q: %v\n", *inspectPath, err)
			os.Exit(1)
		}
		m.Describe(os.Stdout)
		return
	}

	if *inPath == "" && *runCode == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file.l25>, or -run-code <fcode.txt>")
		flag.Usage()
		os.Exit(2)
	}
	if *inPath != "" && *runCode != "" {
		fmt.Fprintln(os.Stderr, "use either -in or -run-code, not both")
		os.Exit(2)
	}
	if *watchMode && *inPath == "" {
		fmt.Fprintln(os.Stderr, "-watch requires a source file")
		os.Exit(2)
	}

	s := session.New(cfg, os.Stdout, os.Stderr, vm.NewScanReader(os.Stdin))
	s.Core = *corePath

	if *runCode != "" {
		if err := s.RunListing(*runCode); err != nil {
			s.Log.Printf("run failed for %q: %v", *runCode, err)
			os.Exit(1)
		}
		return
	}

	if *watchMode {
		if err := watchAndRebuild(s, *inPath); err != nil {
			s.Log.Print(err)
			os.Exit(1)
		}
		return
	}

	if err := s.Build(*inPath); err != nil {
		s.Log.Print(err)
		os.Exit(1)
	}
}

// watchAndRebuild builds once, then again after every save until interrupted.
func watchAndRebuild(s *session.Session, path string) error {
	fullPath, _, err := utils.GetPathInfo(path)
	if err != nil {
		return err
	}

	rebuild := func(p string) {
		if err := s.Build(p); err != nil {
			s.Log.Print(err)
		}
		s.Tag()
		s.Log.Printf("watching %s", p)
	}

	w, err := watch.New(rebuild)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(fullPath); err != nil {
		return err
	}

	rebuild(fullPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
