// trace2lua takes a captured busmon stream and produces a Lua script
// for the script backend which replays it. Lines have the form:
//
// PC: XXXX ADDR: <16 bits> XXXX DATA: <8 bits> XX r|W
//
// plus RESET status lines. Use - as the input to read stdin.
package main

import (
	"flag"
	"io"
	"log"
	"os"

	"github.com/jmchacon/busmon/script"
)

var (
	lenient = flag.Bool("lenient", false, "If true lines which can't be parsed are dropped (noted as comments) instead of failing.")
)

func main() {
	flag.Parse()
	if len(flag.Args()) != 2 {
		log.Fatalf("Invalid command: %s [-lenient] <input> <output>", os.Args[0])
	}
	fn := flag.Args()[0]
	out := flag.Args()[1]

	var in io.Reader = os.Stdin
	if fn != "-" {
		f, err := os.Open(fn)
		if err != nil {
			log.Fatalf("Can't open %q for input - %v", fn, err)
		}
		defer f.Close()
		in = f
	}
	of, err := os.Create(out)
	if err != nil {
		log.Fatalf("Can't open output %q - %v", out, err)
	}
	if err := script.FromTrace(in, of, *lenient); err != nil {
		of.Close()
		log.Fatalf("Can't process %q - %v", fn, err)
	}
	if err := of.Close(); err != nil {
		log.Fatalf("Error closing %q - %v", out, err)
	}
}
