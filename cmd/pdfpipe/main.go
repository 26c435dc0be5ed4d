// This tool runs a single-pass mutation over a PDF file: by default it
// simply re-serializes the file unchanged (a structural round-trip), and
// with -strip-metadata also drops every entry of the trailer's /Info
// dictionary (not the /Catalog, which is a different object entirely).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/pipe"
	"github.com/benoitkugler/pdfpipe/task"
	"github.com/pdfcpu/pdfcpu/pkg/log"
)

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func main() {
	stripMetadata := flag.Bool("strip-metadata", false, "remove Info dictionary entries from the output")
	verbose := flag.Bool("v", false, "enable trace logging")
	flag.Parse()

	input := flag.Arg(0)
	output := flag.Arg(1)
	if input == "" || output == "" {
		fmt.Fprintln(os.Stderr, "usage: pdfpipe [-strip-metadata] [-v] <input.pdf> <output.pdf>")
		os.Exit(2)
	}

	if *verbose {
		log.SetDefaultLogger()
	}

	p, err := pipe.New(input, output)
	check(err)
	defer p.Close()

	check(p.Prepare())

	if *stripMetadata {
		var info object.Object
		var hasInfo bool
		if trailer := p.Trailer(); trailer != nil {
			info, hasInfo = trailer.Get("Info")
		}
		infoRef, isRef := info.(object.IndirectRef)
		isRef = isRef && !infoRef.IsNil()

		if hasInfo && isRef {
			p.AddTask(infoRef.ObjectNumber, task.New("strip-metadata", func(obj *object.Indirect) (task.Result, error) {
				dict, ok := obj.CurrentDef().(*object.Dict)
				if !ok {
					return task.Done, nil
				}
				for _, key := range append([]string(nil), dict.Keys()...) {
					obj.DeleteDictionaryEntry(key)
				}
				return task.Done, nil
			}))
		} else {
			fmt.Fprintln(os.Stderr, "pdfpipe: input has no /Info dictionary to strip")
		}
	}

	check(p.Execute())
	fmt.Println("Done")
}
