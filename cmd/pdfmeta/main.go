// This tool adds or replaces Info-dictionary metadata (Title, Author,
// Producer) on a PDF file in a single streaming pass, mirroring the
// original tool's add-metadata/replace-metadata sample scenarios.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/benoitkugler/pdfpipe/object"
	"github.com/benoitkugler/pdfpipe/pipe"
	"github.com/benoitkugler/pdfpipe/task"
)

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func main() {
	title := flag.String("title", "", "set /Title")
	author := flag.String("author", "", "set /Author")
	producer := flag.String("producer", "pdfpipe", "set /Producer")
	flag.Parse()

	input := flag.Arg(0)
	output := flag.Arg(1)
	if input == "" || output == "" {
		fmt.Fprintln(os.Stderr, "usage: pdfmeta [-title=...] [-author=...] [-producer=...] <input.pdf> <output.pdf>")
		os.Exit(2)
	}

	p, err := pipe.New(input, output)
	check(err)
	defer p.Close()

	check(p.Prepare())

	var info object.Object
	var hasInfo bool
	if trailer := p.Trailer(); trailer != nil {
		info, hasInfo = trailer.Get("Info")
	}
	infoRef, isRef := info.(object.IndirectRef)
	isRef = isRef && !infoRef.IsNil()

	setFields := func(obj *object.Indirect) {
		if *title != "" {
			str, err := object.EncodeTextString(*title)
			check(err)
			obj.SetDictionaryEntry("Title", str)
		}
		if *author != "" {
			str, err := object.EncodeTextString(*author)
			check(err)
			obj.SetDictionaryEntry("Author", str)
		}
		str, err := object.EncodeTextString(*producer)
		check(err)
		obj.SetDictionaryEntry("Producer", str)
	}

	if hasInfo && isRef {
		p.AddTask(infoRef.ObjectNumber, task.New("replace-metadata", func(obj *object.Indirect) (task.Result, error) {
			setFields(obj)
			return task.Done, nil
		}))
	} else {
		// No /Info dictionary exists yet; this sample only rewrites an
		// existing one in place, matching the distilled scope (synthesizing
		// and wiring a brand new trailer entry is pipe.Append's job, not
		// demonstrated by this sample).
		fmt.Fprintln(os.Stderr, "pdfmeta: input has no /Info dictionary to replace, passing through unchanged")
	}

	check(p.Execute())
	fmt.Println("Done")
}
