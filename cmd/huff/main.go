// Command huff compresses and decompresses text files with Huffman coding.
//
//	huff [-d] [-w] [-o out] [file ...]
//
// Without files it reads stdin and writes stdout. With files, each output
// name swaps the extension: name.txt → name.enc, and back with -d.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seiflotfy/huffman"
)

const (
	encodedExt = ".enc"
	decodedExt = ".txt"
)

var (
	dec        = flag.Bool("d", false, "Decompress instead of Compress")
	word       = flag.Bool("w", false, "Use the word model (words, spaces, newlines) instead of characters")
	out        = flag.String("o", "", "Output file (single input only)")
	header     = flag.String("header", "auto", "Header table encoding: auto, raw, flate or zstd")
	noChecksum = flag.Bool("no-checksum", false, "Omit the payload checksum")
	cacheSize  = flag.Int("cache", 0, "Decoders kept across inputs when decompressing")
	quiet      = flag.Bool("q", false, "Do not print size and timing report")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("huff: ")
	flag.Parse()

	opts, err := options()
	if err != nil {
		log.Fatal(err)
	}

	files := flag.Args()
	if *out != "" && len(files) > 1 {
		log.Fatal("-o needs exactly one input file")
	}

	if len(files) == 0 {
		if err := runStdio(opts); err != nil {
			log.Fatal(err)
		}
		return
	}

	d := huffman.NewDecompressor(opts...)
	for _, name := range files {
		if err := runFile(name, opts, d); err != nil {
			log.Fatal(err)
		}
	}
}

func options() ([]huffman.Option, error) {
	var opts []huffman.Option
	if *word {
		opts = append(opts, huffman.WithMode(huffman.ModeWord))
	} else if !*dec {
		opts = append(opts, huffman.WithMode(huffman.ModeChar))
	}

	switch strings.ToLower(*header) {
	case "auto":
		opts = append(opts, huffman.WithHeaderEncoding(huffman.HeaderAuto))
	case "raw":
		opts = append(opts, huffman.WithHeaderEncoding(huffman.HeaderRaw))
	case "flate":
		opts = append(opts, huffman.WithHeaderEncoding(huffman.HeaderFlate))
	case "zstd":
		opts = append(opts, huffman.WithHeaderEncoding(huffman.HeaderZstd))
	default:
		return nil, fmt.Errorf("unknown header encoding %q", *header)
	}

	opts = append(opts,
		huffman.WithChecksum(!*noChecksum),
		huffman.WithDecoderCache(*cacheSize),
	)
	return opts, nil
}

func runStdio(opts []huffman.Option) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read from stdin: %w", err)
	}

	result, report, err := process(data, opts, huffman.NewDecompressor(opts...))
	if err != nil {
		return err
	}

	if _, err := os.Stdout.Write(result); err != nil {
		return fmt.Errorf("failed to write to stdout: %w", err)
	}
	printReport("stdin", report)
	return nil
}

func runFile(name string, opts []huffman.Option, d *huffman.Decompressor) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	target := *out
	if target == "" {
		target = outputName(name, *dec)
	}
	if target == name {
		return fmt.Errorf("%s: output would overwrite input", name)
	}

	result, report, err := process(data, opts, d)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := os.WriteFile(target, result, 0o644); err != nil {
		return err
	}
	printReport(name+" → "+target, report)
	return nil
}

// process runs the whole operation in memory, so nothing is written when it
// fails.
func process(data []byte, opts []huffman.Option, d *huffman.Decompressor) ([]byte, huffman.Report, error) {
	start := time.Now()
	if *dec {
		text, err := d.Decompress(data)
		if err != nil {
			return nil, huffman.Report{}, fmt.Errorf("failed to decompress data: %w", err)
		}
		return []byte(text), huffman.Report{
			OriginalSize:   len(text),
			CompressedSize: len(data),
			Elapsed:        time.Since(start),
		}, nil
	}

	compressed, err := huffman.Compress(string(data), opts...)
	if err != nil {
		return nil, huffman.Report{}, fmt.Errorf("failed to compress data: %w", err)
	}
	return compressed, huffman.Report{
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
		Elapsed:        time.Since(start),
	}, nil
}

// outputName swaps the extension of name for the encoded or decoded one.
func outputName(name string, decompress bool) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if decompress {
		return base + decodedExt
	}
	return base + encodedExt
}

func printReport(what string, r huffman.Report) {
	if *quiet {
		return
	}
	fmt.Fprintf(os.Stderr, "%s\n%s\n", what, r)
}
