package layout

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/banshee-data/swim.report/internal/fsutil"
	"github.com/banshee-data/swim.report/internal/monitoring"
)

// Loader reads ITF files through a FileSystem.
type Loader struct {
	fs fsutil.FileSystem
}

// NewLoader returns a Loader backed by fsys. A nil fsys uses the OS.
func NewLoader(fsys fsutil.FileSystem) *Loader {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Loader{fs: fsys}
}

// Load reads the layout at path from the local filesystem.
func Load(path string) (FrameLayout, error) {
	return NewLoader(nil).Load(path)
}

// Load reads and parses the ITF file at path. A missing file, or one that
// yields no fields, is a *ConfigError.
func (ld *Loader) Load(path string) (FrameLayout, error) {
	f, err := ld.fs.Open(path)
	if err != nil {
		reason := "cannot open file"
		if errors.Is(err, fs.ErrNotExist) {
			reason = "file not found"
		}
		return FrameLayout{}, &ConfigError{Path: path, Reason: reason, Err: err}
	}
	defer f.Close()

	l, err := parse(f, path)
	if err != nil {
		return FrameLayout{}, err
	}
	monitoring.Debugf("loaded layout %s: %d fields, %d bytes", path, len(l.Fields), l.TotalLength())
	return l, nil
}

// Parse reads an ITF document from r, detecting its dialect.
func Parse(r io.Reader) (FrameLayout, error) {
	return parse(r, "<reader>")
}

type itfLine struct {
	num  int
	text string
}

func parse(r io.Reader, path string) (FrameLayout, error) {
	var lines []itfLine
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 4096), 1024*1024)
	n := 0
	for scan.Scan() {
		n++
		text := strings.TrimSpace(strings.TrimPrefix(scan.Text(), "\ufeff"))
		if text == "" || strings.HasPrefix(text, ";") || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, itfLine{num: n, text: text})
	}
	if err := scan.Err(); err != nil {
		return FrameLayout{}, &ConfigError{Path: path, Reason: "read failed", Err: err}
	}

	var fields []FieldDefinition
	if isBlockDialect(lines) {
		fields = parseBlocks(lines, path)
	} else {
		fields = parseSequential(lines, path)
	}
	if len(fields) == 0 {
		return FrameLayout{}, &ConfigError{Path: path, Reason: "no fields parsed"}
	}
	return FrameLayout{Fields: fields}, nil
}

func isBlockDialect(lines []itfLine) bool {
	for _, l := range lines {
		if isFieldHeader(l.text) {
			return true
		}
	}
	return false
}

func isSectionHeader(text string) bool {
	return strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")
}

func isFieldHeader(text string) bool {
	return isSectionHeader(text) && strings.HasPrefix(strings.ToUpper(text), "[FIELD")
}

// splitKV splits KEY=VALUE. Keys are compared upper-case; values keep their
// inner spacing.
func splitKV(text string) (key, value string, ok bool) {
	k, v, found := strings.Cut(text, "=")
	if !found {
		return "", "", false
	}
	return strings.ToUpper(strings.TrimSpace(k)), strings.TrimSpace(v), true
}

func parseLength(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("length must be positive, got %d", n)
	}
	return n, nil
}

func positionalName(index int) string {
	return fmt.Sprintf("field_%d", index)
}

// parseSequential handles the flat dialect: NAME= sets the pending name and
// the next LENGTH= closes the field.
func parseSequential(lines []itfLine, path string) []FieldDefinition {
	var fields []FieldDefinition
	pending := ""
	havePending := false

	for _, l := range lines {
		key, value, ok := splitKV(l.text)
		if !ok {
			continue
		}
		switch key {
		case "NAME":
			pending = value
			havePending = true
		case "LENGTH":
			length, err := parseLength(value)
			if err != nil {
				// the pending name stays open for the next LENGTH line
				monitoring.Warnf("layout %s:%d: skipping LENGTH %q: %v", path, l.num, value, err)
				continue
			}
			name := pending
			if !havePending {
				name = positionalName(len(fields) + 1)
			}
			fields = append(fields, FieldDefinition{Name: name, Length: length})
			pending, havePending = "", false
		}
	}
	return fields
}

type fieldBlock struct {
	line   int
	name   string
	length string
	hasLen bool
}

// parseBlocks handles the [FIELD...] dialect. A header flushes the open
// block; any other section header closes it without starting a new one.
func parseBlocks(lines []itfLine, path string) []FieldDefinition {
	var fields []FieldDefinition
	var open *fieldBlock

	flush := func() {
		if open == nil {
			return
		}
		b := open
		open = nil
		if !b.hasLen {
			monitoring.Warnf("layout %s:%d: field block has no LENGTH, skipping", path, b.line)
			return
		}
		length, err := parseLength(b.length)
		if err != nil {
			monitoring.Warnf("layout %s:%d: skipping field with LENGTH %q: %v", path, b.line, b.length, err)
			return
		}
		name := b.name
		if name == "" {
			name = positionalName(len(fields) + 1)
		}
		fields = append(fields, FieldDefinition{Name: name, Length: length})
	}

	for _, l := range lines {
		if isSectionHeader(l.text) {
			flush()
			if isFieldHeader(l.text) {
				open = &fieldBlock{line: l.num}
			}
			continue
		}
		if open == nil {
			continue
		}
		key, value, ok := splitKV(l.text)
		if !ok {
			continue
		}
		switch key {
		case "NAME":
			open.name = value
		case "LENGTH":
			open.length = value
			open.hasLen = true
		}
	}
	flush()
	return fields
}
