package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/bcache"
	"github.com/peterh/liner"
)

var commands = []string{
	"read", "write", "pin", "unpin", "invalidate", "sync",
	"stats", "devices", "help", "exit", "quit",
}

type blockKey struct {
	dev, block uint32
}

// REPL is the interactive command loop.
type REPL struct {
	cache *bcache.Cache
	out   io.Writer
	liner *liner.State

	// pins holds one handle per outstanding Pin.
	pins map[blockKey][]*bcache.Buf
}

func newREPL(c *bcache.Cache, out io.Writer) *REPL {
	return &REPL{
		cache: c,
		out:   out,
		pins:  make(map[blockKey][]*bcache.Buf),
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bcachectl_history")
}

// Run reads commands until EOF, Ctrl-C or quit.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}
	defer r.saveHistory()

	st := r.cache.Stats()
	fmt.Fprintf(r.out, "bcachectl (buffers=%d, buckets=%d, block_size=%d, devices=%d)\n",
		st.Buffers, st.Buckets, st.BlockSize, st.Devices)
	fmt.Fprintln(r.out, "Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("bcache> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.unpinAll()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if r.exec(line) {
			r.unpinAll()
			return nil
		}
	}
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		_, _ = r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *REPL) completer(line string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

// exec runs one command line and reports whether the REPL should exit.
// Fatal cache errors are reported instead of crashing the shell.
func (r *REPL) exec(line string) (quit bool) {
	defer func() {
		if v := recover(); v != nil {
			var fe *bcache.FatalError
			if err, ok := v.(error); ok && errors.As(err, &fe) {
				fmt.Fprintf(r.out, "fatal: %v\n", fe)
				return
			}
			panic(v)
		}
	}()

	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		r.printHelp()
	case "read", "cat":
		err = r.cmdRead(args)
	case "write":
		err = r.cmdWrite(line, args)
	case "pin":
		err = r.cmdPin(args)
	case "unpin":
		err = r.cmdUnpin(args)
	case "invalidate":
		err = r.cmdInvalidate(args)
	case "sync":
		err = r.cmdSync(args)
	case "stats":
		r.cmdStats()
	case "devices", "ls":
		r.cmdDevices()
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `Commands:
  read <dev> <block> [n]        Dump the first n bytes of a block (default 64)
  write <dev> <block> <data>    Write data at the start of a block; 0x-prefixed data is hex
  pin <dev> <block>             Keep a block cached
  unpin <dev> <block>           Undo one pin
  invalidate <dev>              Drop the cached blocks of a device
  sync <dev>                    Flush a device
  stats                         Show cache counters
  devices                       List mounted devices
  help                          Show this help
  exit                          Exit
`)
}

func (r *REPL) cmdRead(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: read <dev> <block> [n]")
	}
	k, err := parseBlockKey(args[0], args[1])
	if err != nil {
		return err
	}
	n := 64
	if len(args) == 3 {
		if n, err = strconv.Atoi(args[2]); err != nil || n <= 0 {
			return fmt.Errorf("invalid length %q", args[2])
		}
	}

	b, err := r.cache.Read(context.Background(), k.dev, k.block)
	if err != nil {
		return err
	}
	defer r.cache.Release(b)

	data := b.Data()
	fmt.Fprint(r.out, hex.Dump(data[:min(n, len(data))]))
	return nil
}

func (r *REPL) cmdWrite(line string, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: write <dev> <block> <data>")
	}
	k, err := parseBlockKey(args[0], args[1])
	if err != nil {
		return err
	}
	payload, err := parsePayload(restAfterFields(line, 3))
	if err != nil {
		return err
	}
	if len(payload) > r.cache.BlockSize() {
		return fmt.Errorf("data is %d bytes, block size is %d", len(payload), r.cache.BlockSize())
	}

	ctx := context.Background()
	b, err := r.cache.Read(ctx, k.dev, k.block)
	if err != nil {
		return err
	}
	defer r.cache.Release(b)

	copy(b.Data(), payload)
	if err := r.cache.Write(ctx, b); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "OK: wrote %d bytes to %d/%d\n", len(payload), k.dev, k.block)
	return nil
}

func (r *REPL) cmdPin(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: pin <dev> <block>")
	}
	k, err := parseBlockKey(args[0], args[1])
	if err != nil {
		return err
	}

	b, err := r.cache.Read(context.Background(), k.dev, k.block)
	if err != nil {
		return err
	}
	r.cache.Pin(b)
	r.cache.Release(b)

	r.pins[k] = append(r.pins[k], b)
	fmt.Fprintf(r.out, "OK: %d/%d pinned (%d)\n", k.dev, k.block, len(r.pins[k]))
	return nil
}

func (r *REPL) cmdUnpin(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: unpin <dev> <block>")
	}
	k, err := parseBlockKey(args[0], args[1])
	if err != nil {
		return err
	}

	held := r.pins[k]
	if len(held) == 0 {
		return fmt.Errorf("%d/%d is not pinned", k.dev, k.block)
	}
	r.cache.Unpin(held[len(held)-1])
	if len(held) == 1 {
		delete(r.pins, k)
	} else {
		r.pins[k] = held[:len(held)-1]
	}
	fmt.Fprintf(r.out, "OK: %d/%d unpinned\n", k.dev, k.block)
	return nil
}

func (r *REPL) unpinAll() {
	for k, held := range r.pins {
		for _, b := range held {
			r.cache.Unpin(b)
		}
		delete(r.pins, k)
	}
}

func (r *REPL) cmdInvalidate(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: invalidate <dev>")
	}
	dev, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "OK: dropped %d buffers\n", r.cache.Invalidate(dev))
	return nil
}

func (r *REPL) cmdSync(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: sync <dev>")
	}
	dev, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	if err := r.cache.Sync(dev); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "OK")
	return nil
}

func (r *REPL) cmdStats() {
	st := r.cache.Stats()
	fmt.Fprintf(r.out, "Buffers:       %d (%d in use)\n", st.Buffers, st.InUse)
	fmt.Fprintf(r.out, "Buckets:       %d\n", st.Buckets)
	fmt.Fprintf(r.out, "Block size:    %d\n", st.BlockSize)
	fmt.Fprintf(r.out, "Devices:       %d\n", st.Devices)
	fmt.Fprintf(r.out, "Hits:          %d\n", st.Hits)
	fmt.Fprintf(r.out, "Misses:        %d\n", st.Misses)
	fmt.Fprintf(r.out, "Steals:        %d\n", st.Steals)
	fmt.Fprintf(r.out, "Transfers in:  %d\n", st.TransfersIn)
	fmt.Fprintf(r.out, "Transfers out: %d\n", st.TransfersOut)
}

func (r *REPL) cmdDevices() {
	devs := r.cache.Devices()
	if len(devs) == 0 {
		fmt.Fprintln(r.out, "(no devices)")
		return
	}
	for _, d := range devs {
		fmt.Fprintln(r.out, d)
	}
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func parseBlockKey(dev, block string) (blockKey, error) {
	d, err := parseUint32(dev)
	if err != nil {
		return blockKey{}, err
	}
	b, err := parseUint32(block)
	if err != nil {
		return blockKey{}, err
	}
	return blockKey{dev: d, block: b}, nil
}

// parsePayload decodes 0x-prefixed hex and passes anything else through.
func parsePayload(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		p, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return p, nil
	}
	return []byte(s), nil
}

// restAfterFields returns line with its first n fields removed, keeping
// inner spacing of the remainder.
func restAfterFields(line string, n int) string {
	s := strings.TrimSpace(line)
	for range n {
		i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
		if i < 0 {
			return ""
		}
		s = strings.TrimLeft(s[i:], " \t")
	}
	return s
}
