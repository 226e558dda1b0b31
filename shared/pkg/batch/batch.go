package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/psantana5/euclid/pkg/numeric"
	"github.com/sourcegraph/conc/pool"
)

// Pair is one gcd(N, M) input
type Pair struct {
	N uint64
	M uint64
}

// Outcome holds the result of a single pair. Err is set instead of Result
// when the pair was rejected or never ran.
type Outcome struct {
	Pair
	Result uint64
	Err    error
}

// Compute evaluates every pair on at most workers goroutines. Outcomes are
// returned in input order. A rejected pair does not stop the batch; if ctx is
// cancelled, pairs that had not started report ctx.Err() and Compute returns it.
func Compute(ctx context.Context, pairs []Pair, workers int) ([]Outcome, error) {
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]Outcome, len(pairs))
	p := pool.New().WithMaxGoroutines(workers)

	for i, pair := range pairs {
		p.Go(func() {
			outcomes[i].Pair = pair
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return
			}
			outcomes[i].Result, outcomes[i].Err = numeric.GCD(pair.N, pair.M)
		})
	}
	p.Wait()

	return outcomes, ctx.Err()
}

// Failed counts outcomes carrying an error
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// ParsePairs reads one "n m" pair per line. Blank lines and lines starting
// with '#' are skipped; commas are accepted as separators.
func ParsePairs(r io.Reader) ([]Pair, error) {
	var pairs []Pair

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected two operands, got %d", lineNo, len(fields))
		}

		n, err := ParseOperand(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		m, err := ParseOperand(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		pairs = append(pairs, Pair{N: n, M: m})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pairs: %w", err)
	}

	return pairs, nil
}

// ParseOperand parses a base-10 unsigned operand
func ParseOperand(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid operand %q: %w", s, err)
	}
	return v, nil
}
