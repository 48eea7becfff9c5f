// Package session compiles and runs l25 programs for the command-line
// front ends, collecting artifacts on an in-memory disk that is flushed
// to the configured output directory after every build.
package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/oklog/ulid/v2"

	"l25/pkg/asm"
	"l25/pkg/compiler"
	"l25/pkg/config"
	"l25/pkg/utils"
	"l25/pkg/vfs"
	"l25/pkg/vm"
)

var ErrCompile = errors.New("compilation failed")

// Session owns the streams and artifact disk shared by consecutive builds.
// Program output goes to stdout; runtime notices, traces and log lines go
// to stderr.
type Session struct {
	Config config.Config
	Core   string // snapshot path written on a fatal fault
	Log    *log.Logger

	disk   *vfs.Disk
	stdout io.Writer
	stderr io.Writer
	stdin  vm.IntReader

	mu sync.Mutex // serialises watch-mode rebuilds
}

func New(cfg config.Config, stdout, stderr io.Writer, stdin vm.IntReader) *Session {
	s := &Session{
		Config: cfg,
		Log:    log.New(stderr, "", log.LstdFlags),
		disk:   vfs.New(),
		stdout: stdout,
		stderr: stderr,
		stdin:  stdin,
	}
	s.Tag()
	return s
}

// Tag gives the following log lines a fresh session id.
func (s *Session) Tag() {
	s.Log.SetPrefix("l25 " + ulid.Make().String() + " ")
}

// compile turns src into a program, writing the transcript, listing and
// symbol table artifacts.
func (s *Session) compile(src string) (*compiler.Program, error) {
	transcript := io.MultiWriter(s.stdout, s.disk.Writer(vfs.Transcript))
	prog, err := compiler.Compile(src, s.Config.CompileOptions(transcript))

	table := prog.SymbolTable()
	if werr := s.disk.Write(vfs.Symbols, []byte(table)); werr != nil {
		return prog, werr
	}
	if s.Config.ListTable {
		fmt.Fprint(s.stdout, table)
	}
	if err != nil {
		var list compiler.ErrorList
		if errors.As(err, &list) {
			return prog, fmt.Errorf("%w: %d errors", ErrCompile, len(list))
		}
		return prog, fmt.Errorf("%w: %v", ErrCompile, err)
	}

	listing := asm.Format(prog.Code)
	if err := s.disk.Write(vfs.Listing, []byte(listing)); err != nil {
		return prog, err
	}
	if s.Config.ListCode {
		fmt.Fprint(s.stdout, asm.Disassemble(prog.Code))
	}
	return prog, nil
}

// execute runs code between the Start and End banners. Everything the
// program prints also lands in the results artifact.
func (s *Session) execute(code []vm.Instruction) error {
	results := s.disk.Writer(vfs.Results)
	out := io.MultiWriter(s.stdout, results)

	m := vm.New(code, s.Config.MachineOptions())
	m.Output = out
	m.Errors = io.MultiWriter(s.stderr, results)
	m.Input = &echoReader{r: s.stdin, w: results}
	if s.Config.Trace {
		m.Trace = s.stderr
	}

	fmt.Fprintln(out, "Start l25")
	if err := m.Run(); err != nil {
		fmt.Fprintln(out)
		if s.Core != "" {
			if serr := m.SnapshotToFile(s.Core); serr != nil {
				s.Log.Printf("writing snapshot %s: %v", s.Core, serr)
			} else {
				s.Log.Printf("machine state saved to %s", s.Core)
			}
		}
		return err
	}
	fmt.Fprintln(out, "\nEnd l25")
	return nil
}

// Build compiles the source at path and runs it when it compiled cleanly.
func (s *Session) Build(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disk.Clear()
	defer s.flush()

	src, err := utils.ReadSource(path)
	if err != nil {
		return err
	}
	if src == "" {
		return fmt.Errorf("%s: the input file is empty", path)
	}
	prog, err := s.compile(src)
	if err != nil {
		return err
	}
	return s.execute(prog.Code)
}

// RunListing executes a saved instruction listing.
func (s *Session) RunListing(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disk.Clear()
	defer s.flush()

	text, err := utils.ReadSource(path)
	if err != nil {
		return err
	}
	code, err := asm.Parse(text)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return s.execute(code)
}

func (s *Session) flush() {
	if s.Config.OutDir == "" {
		return
	}
	if err := s.disk.PersistTo(s.Config.OutDir); err != nil {
		s.Log.Printf("writing artifacts to %s: %v", s.Config.OutDir, err)
	}
}

// echoReader copies every value read into w, one per line.
type echoReader struct {
	r vm.IntReader
	w io.Writer
}

func (e *echoReader) ReadInt() (int, error) {
	v, err := e.r.ReadInt()
	if err == nil {
		fmt.Fprintf(e.w, "%d\n", v)
	}
	return v, err
}
