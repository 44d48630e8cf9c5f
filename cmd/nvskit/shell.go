package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/nvskit/nvskit/pkg/format"
	"github.com/nvskit/nvskit/pkg/partition"
	"github.com/nvskit/nvskit/pkg/record"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem("namespaces"),
	readline.PcItem("ls"),
	readline.PcItem("get"),
	readline.PcItem("warnings"),
	readline.PcItem("info"),
)

const shellHelp = `
Commands:
  namespaces          List the namespaces found in the partition
  ls [namespace]      List records, optionally restricted to one namespace
  get NS KEY          Show one record in full
  warnings            List decode warnings
  info                Summary of the decoded partition
  .help               Show this help message
  .exit               Exit the shell
`

func runShell(args []string) {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	pageSize := fs.Int("page-size", format.DefaultPageSize, "NVS page size in bytes")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: nvskit shell [options] <partition.bin>")
		os.Exit(2)
	}

	logger := newLogger(*verbose)
	res := decodeImage(logger, fs.Arg(0), *pageSize)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "nvs> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialize readline")
	}
	defer rl.Close()

	fmt.Printf("%s: %d records, %d warnings (.help for commands)\n",
		fs.Arg(0), len(res.Records), len(res.Warnings))

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case ".exit", ".quit", "exit", "quit":
			return
		case ".help", "help":
			fmt.Print(shellHelp)
		case "namespaces":
			showNamespaces(res)
		case "ls":
			ns := ""
			if len(fields) > 1 {
				ns = fields[1]
			}
			listRecords(res, ns)
		case "get":
			if len(fields) != 3 {
				fmt.Println("usage: get NS KEY")
				continue
			}
			showRecord(res, fields[1], fields[2])
		case "warnings":
			showWarnings(res)
		case "info":
			showInfo(fs.Arg(0), *pageSize, res)
		default:
			fmt.Printf("unknown command %q (try .help)\n", fields[0])
		}
	}
}

func showNamespaces(res *partition.Result) {
	if len(res.Namespaces) == 0 {
		fmt.Println("no namespaces defined")
		return
	}
	counts := make(map[string]int)
	for _, r := range res.Records {
		counts[r.Namespace]++
	}
	for _, ns := range sortedNamespaces(res.Namespaces) {
		fmt.Printf("%3d  %-16s %d record(s)\n", ns.index, ns.name, counts[ns.name])
	}
}

type nsPair struct {
	index uint8
	name  string
}

func sortedNamespaces(m map[uint8]string) []nsPair {
	out := make([]nsPair, 0, len(m))
	for idx, name := range m {
		out = append(out, nsPair{idx, name})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].index < out[b].index })
	return out
}

func listRecords(res *partition.Result, ns string) {
	n := 0
	for _, r := range res.Records {
		if ns != "" && r.Namespace != ns {
			continue
		}
		fmt.Printf("%-16s %-16s %-5s %s\n", r.Namespace, r.Key, r.Type, previewValue(r))
		n++
	}
	if n == 0 {
		fmt.Println("no records")
	}
}

func showRecord(res *partition.Result, ns, key string) {
	for _, r := range res.Records {
		if r.Namespace != ns || r.Key != key {
			continue
		}
		fmt.Printf("namespace: %s\nkey:       %s\ntype:      %s\n", r.Namespace, r.Key, r.Type)
		if b, ok := r.Value.([]byte); ok {
			fmt.Printf("size:      %d bytes\nvalue:     %s\n", len(b), hex.EncodeToString(b))
		} else {
			fmt.Printf("value:     %v\n", r.Value)
		}
		return
	}
	fmt.Printf("no record %s/%s\n", ns, key)
}

func showWarnings(res *partition.Result) {
	if len(res.Warnings) == 0 {
		fmt.Println("no warnings")
		return
	}
	for _, w := range res.Warnings {
		fmt.Println(w.String())
	}
}

func showInfo(path string, pageSize int, res *partition.Result) {
	fmt.Printf("image:      %s\npage size:  %d\nnamespaces: %d\nrecords:    %d\nwarnings:   %d\n",
		path, pageSize, len(res.Namespaces), len(res.Records), len(res.Warnings))
}

// previewValue renders a record value for list output, truncating blobs.
func previewValue(r record.Record) string {
	switch v := r.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		if len(v) > 16 {
			return fmt.Sprintf("%s... (%d bytes)", hex.EncodeToString(v[:16]), len(v))
		}
		return fmt.Sprintf("%s (%d bytes)", hex.EncodeToString(v), len(v))
	default:
		return fmt.Sprintf("%v", r.Value)
	}
}
