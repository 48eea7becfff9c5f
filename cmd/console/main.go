// Command console is the interactive front end: it asks for a source file
// and the listing switches, then compiles and runs the program with reads
// served from the terminal.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"l25/pkg/config"
	"l25/pkg/session"
	"l25/pkg/utils"
)

const historyFile = ".l25_history"

var errQuit = errors.New("quit")

// terminalReader serves read operations from the line editor.
type terminalReader struct {
	ln *liner.State
}

func (r terminalReader) ReadInt() (int, error) {
	for {
		line, err := r.ln.Prompt("? ")
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil {
			r.ln.AppendHistory(line)
			return v, nil
		}
		fmt.Println("please enter an integer")
	}
}

func ask(ln *liner.State, prompt string) (bool, error) {
	answer, err := ln.Prompt(prompt)
	if err != nil {
		return false, err
	}
	answer = strings.TrimSpace(answer)
	return answer != "" && (answer[0] == 'y' || answer[0] == 'Y'), nil
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("bad environment: %v", err)
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	s := session.New(cfg, os.Stdout, os.Stderr, terminalReader{ln: ln})
	for {
		err := runFile(ln, s)
		switch {
		case errors.Is(err, errQuit), errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			fmt.Println()
			return
		case err != nil:
			s.Log.Print(err)
		}
		s.Tag()
	}
}

// runFile handles one source file from prompt to End banner.
func runFile(ln *liner.State, s *session.Session) error {
	name, err := ln.Prompt("Input l25 file?   ")
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	switch name {
	case "":
		return nil
	case ":quit", ":q":
		return errQuit
	}
	ln.AppendHistory(name)

	fullPath, _, err := utils.GetPathInfo(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(fullPath); err != nil {
		return fmt.Errorf("can't open the input file: %w", err)
	}

	if s.Config.ListCode, err = ask(ln, "List object codes?(Y/N)"); err != nil {
		return err
	}
	if s.Config.ListTable, err = ask(ln, "List symbol table?(Y/N)"); err != nil {
		return err
	}
	return s.Build(fullPath)
}
