package vm

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// machineState is the JSON-serializable snapshot of the machine registers.
type machineState struct {
	Mode        string    `json:"mode"`
	P           int       `json:"p"`
	B           int       `json:"b"`
	T           int       `json:"t"`
	Halted      bool      `json:"halted"`
	Steps       int       `json:"steps"`
	StackSize   int       `json:"stack_size"`
	MaxHandlers int       `json:"max_handlers"`
	Handlers    []Handler `json:"handlers"`
	Pending     []int     `json:"pending"`
}

// SnapshotToBytes serialises the machine into an in-memory ZIP archive holding
// machine_state.json, stack.bin (words 0..T) and code.json.
func (m *Machine) SnapshotToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := machineState{
		Mode:        m.Mode.String(),
		P:           m.P,
		B:           m.B,
		T:           m.T,
		Halted:      m.Halted,
		Steps:       m.Steps,
		StackSize:   len(m.Stack),
		MaxHandlers: m.MaxHandlers,
		Handlers:    append([]Handler{}, m.Handlers...),
		Pending:     append([]int{}, m.Pending...),
	}
	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal machine_state: %w", err)
	}
	if err := writeZipEntry(zw, "machine_state.json", jsonData); err != nil {
		return nil, err
	}

	top := m.T
	if top >= len(m.Stack) {
		top = len(m.Stack) - 1
	}
	if top < 0 {
		top = 0
	}
	if err := writeZipEntry(zw, "stack.bin", intSliceToLE(m.Stack[:top+1])); err != nil {
		return nil, err
	}

	codeJSON, err := json.MarshalIndent(m.Code, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal code: %w", err)
	}
	if err := writeZipEntry(zw, "code.json", codeJSON); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes applies an archive produced by SnapshotToBytes.
func (m *Machine) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, "machine_state.json")
	if err != nil {
		return err
	}
	var state machineState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return fmt.Errorf("unmarshal machine_state: %w", err)
	}
	mode, err := ParseAddressingMode(state.Mode)
	if err != nil {
		return err
	}
	if state.StackSize <= 0 || state.T >= state.StackSize {
		return fmt.Errorf("bad stack geometry: size %d top %d", state.StackSize, state.T)
	}

	codeJSON, err := readZipEntry(fileMap, "code.json")
	if err != nil {
		return err
	}
	var code []Instruction
	if err := json.Unmarshal(codeJSON, &code); err != nil {
		return fmt.Errorf("unmarshal code: %w", err)
	}

	raw, err := readZipEntry(fileMap, "stack.bin")
	if err != nil {
		return err
	}

	m.Code = code
	m.Mode = mode
	m.layout = mode.Layout()
	m.Stack = make([]int, state.StackSize)
	leToIntSlice(raw, m.Stack)
	m.P = state.P
	m.B = state.B
	m.T = state.T
	m.Halted = state.Halted
	m.Steps = state.Steps
	m.MaxHandlers = state.MaxHandlers
	if m.MaxHandlers <= 0 {
		m.MaxHandlers = DefaultMaxHandlers
	}
	m.Handlers = state.Handlers
	m.Pending = state.Pending
	return nil
}

// SnapshotToFile writes the snapshot archive to path.
func (m *Machine) SnapshotToFile(path string) error {
	data, err := m.SnapshotToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a snapshot archive from path.
func (m *Machine) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.RestoreFromBytes(data)
}

// LoadSnapshot builds a machine from a snapshot file.
func LoadSnapshot(path string) (*Machine, error) {
	m := &Machine{}
	if err := m.RestoreFromFile(path); err != nil {
		return nil, err
	}
	return m, nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func intSliceToLE(src []int) []byte {
	out := make([]byte, len(src)*8)
	for i, v := range src {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(int64(v)))
	}
	return out
}

func leToIntSlice(src []byte, dst []int) {
	for i := range dst {
		if i*8+7 < len(src) {
			dst[i] = int(int64(binary.LittleEndian.Uint64(src[i*8:])))
		}
	}
}

// Describe writes a register, handler and stack summary of the machine.
func (m *Machine) Describe(w io.Writer) {
	fmt.Fprintf(w, "mode=%s p=%d b=%d t=%d halted=%t steps=%d\n", m.Mode, m.P, m.B, m.T, m.Halted, m.Steps)
	if m.P >= 0 && m.P < len(m.Code) {
		fmt.Fprintf(w, "next: %d %s\n", m.P, m.Code[m.P])
	}
	for i, h := range m.Handlers {
		fmt.Fprintf(w, "handler %d: catch=%d base=%d top=%d pending=%d\n", i, h.Addr, h.Base, h.Top, h.Pending)
	}
	if len(m.Pending) > 0 {
		fmt.Fprintf(w, "pending: %v\n", m.Pending)
	}
	fmt.Fprint(w, "stack:")
	for i := 1; i <= m.T && i < len(m.Stack); i++ {
		fmt.Fprintf(w, " %d", m.Stack[i])
	}
	fmt.Fprintln(w)
}
