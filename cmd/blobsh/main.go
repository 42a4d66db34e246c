// blobsh is an interactive inspector for the blob data cache.
//
// Usage:
//
//	blobsh [opts] <file>        Open a file-backed blob
//	blobsh [opts] --mem <size>  Open a synthetic in-memory blob
//
// Options:
//
//	-l, --limit       Cache data limit in bytes
//	-a, --alloc       Block allocation quantum (power of two)
//	-r, --read        Source read quantum (power of two)
//	-t, --trim        Retained closed entry limit
//	-c, --config      Explicit config file (JWCC)
//	-w, --write       Open the blob writable
//
// Commands (in REPL):
//
//	read <n>                 Read n bytes at the current position
//	seek <pos> [set|cur|end] Move the current position
//	tell                     Show the current position
//	len                      Show the blob length
//	region <off> <n> [align] Map a frame and show its bytes
//	dump <off> <n> <file>    Write a region to a file atomically
//	info                     Show cache statistics
//	purge <n>                Purge n bytes from the cache
//	limit <n>                Change the cache data limit
//	help                     Show this help
//	exit / quit / q          Exit
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
	"github.com/calvinalkan/blobcache/pkg/source"
	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("blobsh", pflag.ExitOnError)

	limit := flags.IntP("limit", "l", 0, "cache data limit in bytes")
	alloc := flags.IntP("alloc", "a", 0, "block allocation quantum")
	read := flags.IntP("read", "r", 0, "source read quantum")
	trim := flags.IntP("trim", "t", 0, "retained closed entry limit")
	configPath := flags.StringP("config", "c", "", "config file path")
	writable := flags.BoolP("write", "w", false, "open the blob writable")
	memSize := flags.Int("mem", 0, "open a synthetic in-memory blob of this size")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: blobsh [options] <file>\n\nOptions:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	// Flags override config file values. Zero is a valid trim limit,
	// so that flag counts only when the user actually set it.
	over := Config{
		DataLimit:    *limit,
		AllocQuantum: *alloc,
		ReadQuantum:  *read,
	}

	if flags.Changed("trim") {
		over.TrimLimit = trim
	}

	cfg = mergeConfig(cfg, over)

	if *memSize == 0 && flags.NArg() < 1 {
		flags.Usage()

		return errors.New("missing blob file path")
	}

	cache, err := blobcache.New(blobcache.Config{
		Name:         "blobsh",
		DataLimit:    cfg.DataLimit,
		AllocQuantum: cfg.AllocQuantum,
		ReadQuantum:  cfg.ReadQuantum,
		TrimLimit:    *cfg.TrimLimit,
	})
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	defer cache.Destroy()

	mode := blobcache.ModeRead
	if *writable {
		mode = blobcache.ModeReadWrite
	}

	var (
		blob *blobcache.Blob
		name string
	)

	if *memSize > 0 {
		buf := make([]byte, *memSize)
		for i := range buf {
			buf[i] = byte(i)
		}

		blob, err = source.FromMemory(cache, buf, mode)
		name = fmt.Sprintf("mem:%d", *memSize)
	} else {
		name = flags.Arg(0)
		blob, err = cache.Create(&source.File{Path: name}, mode, source.FileMethods)
	}

	if err != nil {
		return fmt.Errorf("opening blob: %w", err)
	}
	defer blob.Close()

	m, err := blob.MapOpen()
	if err != nil {
		return fmt.Errorf("opening mapping: %w", err)
	}
	defer m.Close()

	repl := &REPL{
		cache: cache,
		blob:  blob,
		m:     m,
		name:  name,
	}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	cache *blobcache.Cache
	blob  *blobcache.Blob
	m     *blobcache.Map
	name  string
	liner *liner.State
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".blobsh_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	length, err := r.blob.Length()
	if err != nil {
		return err
	}

	fmt.Printf("blobsh - %s (%s)\n", r.name, humanize.IBytes(length))
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("blobsh> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "read":
			r.cmdRead(args)

		case "seek":
			r.cmdSeek(args)

		case "tell":
			r.cmdTell()

		case "len", "length":
			r.cmdLen()

		case "region", "frame":
			r.cmdRegion(args)

		case "dump":
			r.cmdDump(args)

		case "info", "stats":
			r.cmdInfo()

		case "purge":
			r.cmdPurge(args)

		case "limit":
			r.cmdLimit(args)

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

// completer provides tab completion for commands.
func (r *REPL) completer(line string) []string {
	commands := []string{
		"read", "seek", "tell", "len", "length",
		"region", "frame", "dump",
		"info", "stats", "purge", "limit",
		"clear", "cls", "help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  read <n>                 Read n bytes at the current position")
	fmt.Println("  seek <pos> [set|cur|end] Move the current position")
	fmt.Println("  tell                     Show the current position")
	fmt.Println("  len                      Show the blob length")
	fmt.Println("  region <off> <n> [align] Map a frame and show its bytes")
	fmt.Println("  dump <off> <n> <file>    Write a region to a file atomically")
	fmt.Println("  info                     Show cache statistics")
	fmt.Println("  purge <n>                Purge n bytes from the cache")
	fmt.Println("  limit <n>                Change the cache data limit")
	fmt.Println("  help                     Show this help")
	fmt.Println("  exit / quit / q          Exit")
}

func parseInt(s string) (int, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %s", s)
	}

	return int(n), nil
}

// hexdump prints data in a conventional offset/hex/ASCII layout.
func hexdump(base uint64, data []byte) {
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}

		row := data[off:end]

		fmt.Printf("%08x  ", base+uint64(off))

		for i := range 16 {
			if i < len(row) {
				fmt.Printf("%02x ", row[i])
			} else {
				fmt.Print("   ")
			}
		}

		fmt.Print(" |")

		for _, b := range row {
			if b >= 0x20 && b < 0x7F {
				fmt.Printf("%c", b)
			} else {
				fmt.Print(".")
			}
		}

		fmt.Println("|")
	}
}

func (r *REPL) cmdRead(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: read <n>")

		return
	}

	n, err := parseInt(args[0])
	if err != nil || n <= 0 {
		fmt.Printf("Bad length: %s\n", args[0])

		return
	}

	pos, _ := r.blob.Tell()
	buf := make([]byte, n)

	got, err := r.blob.Read(buf)
	if err != nil {
		fmt.Printf("Read failed: %v\n", err)

		return
	}

	hexdump(pos, buf[:got])
	fmt.Printf("%d bytes\n", got)
}

func (r *REPL) cmdSeek(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: seek <pos> [set|cur|end]")

		return
	}

	pos, err := strconv.ParseInt(args[0], 0, 64)
	if err != nil {
		fmt.Printf("Bad position: %s\n", args[0])

		return
	}

	whence := io.SeekStart

	if len(args) > 1 {
		switch strings.ToLower(args[1]) {
		case "set":
			whence = io.SeekStart
		case "cur":
			whence = io.SeekCurrent
		case "end":
			whence = io.SeekEnd
		default:
			fmt.Printf("Bad whence: %s\n", args[1])

			return
		}
	}

	if err := r.blob.Seek(pos, whence); err != nil {
		fmt.Printf("Seek failed: %v\n", err)

		return
	}

	r.cmdTell()
}

func (r *REPL) cmdTell() {
	pos, err := r.blob.Tell()
	if err != nil {
		fmt.Printf("Tell failed: %v\n", err)

		return
	}

	fmt.Printf("Position: %d\n", pos)
}

func (r *REPL) cmdLen() {
	length, err := r.blob.Length()
	if err != nil {
		fmt.Printf("Length failed: %v\n", err)

		return
	}

	fmt.Printf("Length: %d (%s)\n", length, humanize.IBytes(length))
}

func (r *REPL) region(args []string) ([]byte, uint64, bool) {
	if len(args) < 2 {
		return nil, 0, false
	}

	off, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		fmt.Printf("Bad offset: %s\n", args[0])

		return nil, 0, false
	}

	n, err := parseInt(args[1])
	if err != nil || n < 0 {
		fmt.Printf("Bad length: %s\n", args[1])

		return nil, 0, false
	}

	alignment := 1

	if len(args) > 2 {
		alignment, err = parseInt(args[2])
		if err != nil {
			fmt.Printf("Bad alignment: %s\n", args[2])

			return nil, 0, false
		}
	}

	frame, err := r.m.Region(off, n, alignment)
	if err != nil {
		fmt.Printf("Region failed: %v\n", err)

		return nil, 0, false
	}

	return frame, off, true
}

func (r *REPL) cmdRegion(args []string) {
	frame, off, ok := r.region(args)
	if !ok {
		if len(args) < 2 {
			fmt.Println("Usage: region <off> <n> [align]")
		}

		return
	}

	hexdump(off, frame)
}

func (r *REPL) cmdDump(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: dump <off> <n> <file>")

		return
	}

	frame, _, ok := r.region(args[:2])
	if !ok {
		return
	}

	if err := atomic.WriteFile(args[2], bytes.NewReader(frame)); err != nil {
		fmt.Printf("Dump failed: %v\n", err)

		return
	}

	fmt.Printf("Wrote %d bytes to %s\n", len(frame), args[2])
}

func (r *REPL) cmdInfo() {
	s := r.cache.Stats()

	fmt.Printf("Cache:           %s\n", s.Name)
	fmt.Printf("Data size:       %s\n", humanize.IBytes(uint64(s.DataSize)))
	fmt.Printf("Data limit:      %s\n", humanize.IBytes(uint64(s.DataLimit)))
	fmt.Printf("Entries:         %d\n", s.Entries)
	fmt.Printf("Blocks:          %d\n", s.Blocks)
	fmt.Printf("Open maps:       %d\n", s.OpenMaps)
	fmt.Printf("Lock generation: %d\n", s.LockGeneration)
	fmt.Printf("Purges:          %d (%s freed)\n", s.Purges, humanize.IBytes(uint64(s.PurgedBytes)))
}

func (r *REPL) cmdPurge(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: purge <n>")

		return
	}

	n, err := parseInt(args[0])
	if err != nil || n <= 0 {
		fmt.Printf("Bad byte count: %s\n", args[0])

		return
	}

	// Drop the limit to force a purge, then restore it.
	old := r.cache.Limit()
	before := r.cache.Stats().DataSize
	r.cache.SetLimit(max(before-n, 1))
	r.cache.SetLimit(old)
	after := r.cache.Stats().DataSize

	fmt.Printf("Freed %s\n", humanize.IBytes(uint64(before-after)))
}

func (r *REPL) cmdLimit(args []string) {
	if len(args) < 1 {
		fmt.Printf("Limit: %s\n", humanize.IBytes(uint64(r.cache.Limit())))

		return
	}

	n, err := parseInt(args[0])
	if err != nil || n <= 0 {
		fmt.Printf("Bad limit: %s\n", args[0])

		return
	}

	r.cache.SetLimit(n)
	fmt.Printf("Limit: %s\n", humanize.IBytes(uint64(n)))
}
