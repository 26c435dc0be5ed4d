package object

import (
	"bytes"
	"fmt"
	"io"

	pdfcpufilter "github.com/pdfcpu/pdfcpu/pkg/filter"
)

// FilterName is a PDF stream filter name, as found in a /Filter entry.
type FilterName string

const (
	FilterFlate     FilterName = FilterName(pdfcpufilter.Flate)
	FilterLZW       FilterName = FilterName(pdfcpufilter.LZW)
	FilterASCII85   FilterName = FilterName(pdfcpufilter.ASCII85)
	FilterASCIIHex  FilterName = FilterName(pdfcpufilter.ASCIIHex)
	FilterRunLength FilterName = FilterName(pdfcpufilter.RunLength)
)

// FilterSpec is one stage of a stream's filter chain: a name plus its
// /DecodeParms, already resolved to plain ints (predictor, colors, bpc,
// columns, earlyChange -- the parameters pdfcpu/pkg/filter understands).
type FilterSpec struct {
	Name   FilterName
	Params map[string]int
}

// Chain is the ordered pipeline declared by /Filter (+/DecodeParms).
// pdfpipe never reimplements the codecs themselves: every stage is handed
// to github.com/pdfcpu/pdfcpu/pkg/filter.
type Chain []FilterSpec

// Decode runs raw (encoded) bytes through the chain in declared order,
// producing the stream's logical content.
func (c Chain) Decode(raw []byte) ([]byte, error) {
	var r io.Reader = bytes.NewReader(raw)
	for _, spec := range c {
		fi, err := pdfcpufilter.NewFilter(string(spec.Name), spec.Params)
		if err != nil {
			return nil, fmt.Errorf("object: unsupported filter %q: %w", spec.Name, err)
		}
		r, err = fi.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("object: decoding %q: %w", spec.Name, err)
		}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("object: draining decoded stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode runs content bytes through the chain in reverse (last-declared
// filter applied first to reach the wire representation).
func (c Chain) Encode(content []byte) ([]byte, error) {
	var r io.Reader = bytes.NewReader(content)
	for i := len(c) - 1; i >= 0; i-- {
		spec := c[i]
		fi, err := pdfcpufilter.NewFilter(string(spec.Name), spec.Params)
		if err != nil {
			return nil, fmt.Errorf("object: unsupported filter %q: %w", spec.Name, err)
		}
		r, err = fi.Encode(r)
		if err != nil {
			return nil, fmt.Errorf("object: encoding %q: %w", spec.Name, err)
		}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("object: draining encoded stream: %w", err)
	}
	return buf.Bytes(), nil
}

// ChainFromDict resolves the /Filter and /DecodeParms entries of a stream
// dictionary into a Chain. /Filter may be a single Name or an Array of
// Names; /DecodeParms mirrors its shape.
func ChainFromDict(d *Dict) (Chain, error) {
	filterVal, ok := d.Get("Filter")
	if !ok || filterVal == nil {
		return nil, nil
	}
	parmsVal, _ := d.Get("DecodeParms")

	names := asArray(filterVal)
	parms := asArray(parmsVal)

	chain := make(Chain, len(names))
	for i, n := range names {
		name, ok := n.(Name)
		if !ok {
			return nil, fmt.Errorf("object: /Filter entry %v is not a name", n)
		}
		var params map[string]int
		if i < len(parms) {
			if pd, ok := parms[i].(*Dict); ok && pd != nil {
				params = intParams(pd)
			}
		}
		chain[i] = FilterSpec{Name: FilterName(name), Params: params}
	}
	return chain, nil
}

func asArray(v Object) Array {
	switch t := v.(type) {
	case nil:
		return nil
	case Array:
		return t
	default:
		return Array{v}
	}
}

func intParams(d *Dict) map[string]int {
	out := map[string]int{}
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		switch n := v.(type) {
		case Integer:
			out[k] = int(n)
		case Float:
			out[k] = int(n)
		}
	}
	return out
}
