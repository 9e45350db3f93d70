package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/flier/corral/pkg/untrust"
	"github.com/flier/corral/pkg/xerrors"
)

// errMalformedWorkload is returned when a workload descriptor cannot be
// parsed, wrapped with details about what went wrong.
var errMalformedWorkload = errors.New("corralbench: malformed workload descriptor")

// workload describes one stress run: how many workers to spawn, how long to
// run them, and the size tiers each worker cycles through (matching the
// original harness's 1 MiB / 64 KiB / 4 KiB bands).
type workload struct {
	workers int
	seconds int
	tiers   []int
}

func defaultWorkload() workload {
	return workload{
		workers: 50,
		seconds: 10,
		tiers:   []int{1 << 20, 1 << 16, 1 << 12},
	}
}

// parseWorkload reads a whitespace-delimited "key value" descriptor.
//
// Recognized keys are "workers", "seconds", and "tier" (repeatable). Unknown
// keys and malformed integers are reported as errors rather than panics,
// since the descriptor file is operator-supplied, untrusted input.
func parseWorkload(data []byte) (workload, error) {
	return untrust.ReadAll(untrust.Input(data), errMalformedWorkload, func(r *untrust.Reader) (w workload, err error) {
		w = workload{}

		for !r.AtEnd() {
			skipSpace(r)
			if r.AtEnd() {
				break
			}

			key, err := readToken(r)
			if err != nil {
				return w, fmt.Errorf("%w: reading key: %w", errMalformedWorkload, err)
			}

			skipSpace(r)

			val, err := readToken(r)
			if err != nil {
				return w, fmt.Errorf("%w: reading value for %q: %w", errMalformedWorkload, key, err)
			}

			n, convErr := strconv.Atoi(val)
			if convErr != nil {
				return w, fmt.Errorf("%w: %q is not an integer: %w", errMalformedWorkload, val, convErr)
			}

			switch key {
			case "workers":
				w.workers = n
			case "seconds":
				w.seconds = n
			case "tier":
				if n <= 0 {
					return w, fmt.Errorf("%w: tier must be positive, got %d", errMalformedWorkload, n)
				}
				w.tiers = append(w.tiers, n)
			default:
				return w, fmt.Errorf("%w: unknown key %q", errMalformedWorkload, key)
			}
		}

		if w.workers <= 0 || w.seconds <= 0 || len(w.tiers) == 0 {
			return w, fmt.Errorf("%w: incomplete descriptor", errMalformedWorkload)
		}

		return w, nil
	})
}

var spaceBytes = [...]byte{' ', '\t', '\n', '\r'}

func atSpace(r *untrust.Reader) bool {
	for _, b := range spaceBytes {
		if r.Peek(b) {
			return true
		}
	}
	return false
}

func skipSpace(r *untrust.Reader) {
	for !r.AtEnd() && atSpace(r) {
		if _, err := r.ReadByte(); err != nil {
			return
		}
	}
}

func readToken(r *untrust.Reader) (string, error) {
	var buf []byte

	for !r.AtEnd() && !atSpace(r) {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		buf = append(buf, b)
	}

	if len(buf) == 0 {
		return "", errors.New("corralbench: empty token")
	}

	return string(buf), nil
}
