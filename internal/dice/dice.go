// Package dice parses and rolls dice expressions for the /roll command.
//
// Accepted forms are a bare side count ("20"), NdS ("d20", "3d6") and NdS
// with a signed modifier ("2d6+3", "4d8-1"). Parsing is case-insensitive and
// ignores surrounding whitespace.
package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Limits keep a single roll small enough to print in one chat message.
const (
	MaxCount = 100
	MaxSides = 1_000_000
)

// ErrInvalidExpression is wrapped by every parse failure.
var ErrInvalidExpression = errors.New("dice: invalid expression")

// Expression is a parsed dice expression.
type Expression struct {
	Count    int
	Sides    int
	Modifier int
}

// String renders e in canonical NdS[+M] form.
func (e Expression) String() string {
	s := fmt.Sprintf("%dd%d", e.Count, e.Sides)
	switch {
	case e.Modifier > 0:
		s += fmt.Sprintf("+%d", e.Modifier)
	case e.Modifier < 0:
		s += strconv.Itoa(e.Modifier)
	}
	return s
}

// Result holds the outcome of a roll.
type Result struct {
	Expression Expression

	// Rolls holds the individual die results before the modifier is applied.
	Rolls []int

	// Total is the sum of Rolls plus the modifier.
	Total int
}

// Parse parses expr. A number without a 'd' is treated as the side count of
// a single die.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return Expression{}, fmt.Errorf("%w: empty", ErrInvalidExpression)
	}

	e := Expression{Count: 1}
	dIdx := strings.Index(s, "d")
	if dIdx == -1 {
		sides, err := strconv.Atoi(s)
		if err != nil {
			return Expression{}, fmt.Errorf("%w: %q is not a number or NdS", ErrInvalidExpression, expr)
		}
		e.Sides = sides
		return e, e.validate(expr)
	}

	if countStr := s[:dIdx]; countStr != "" {
		count, err := strconv.Atoi(countStr)
		if err != nil {
			return Expression{}, fmt.Errorf("%w: dice count %q in %q", ErrInvalidExpression, countStr, expr)
		}
		e.Count = count
	}

	rest := s[dIdx+1:]
	sidesStr := rest
	if i := strings.IndexAny(rest, "+-"); i != -1 {
		sidesStr = rest[:i]
		mod, err := strconv.Atoi(rest[i+1:])
		if err != nil || rest[i+1:] == "" || strings.ContainsAny(rest[i+1:], "+-") {
			return Expression{}, fmt.Errorf("%w: modifier %q in %q", ErrInvalidExpression, rest[i+1:], expr)
		}
		if rest[i] == '-' {
			mod = -mod
		}
		e.Modifier = mod
	}
	sides, err := strconv.Atoi(sidesStr)
	if err != nil {
		return Expression{}, fmt.Errorf("%w: sides %q in %q", ErrInvalidExpression, sidesStr, expr)
	}
	e.Sides = sides
	return e, e.validate(expr)
}

func (e Expression) validate(expr string) error {
	if e.Count < 1 || e.Count > MaxCount {
		return fmt.Errorf("%w: dice count must be between 1 and %d, got %d in %q", ErrInvalidExpression, MaxCount, e.Count, expr)
	}
	if e.Sides < 1 || e.Sides > MaxSides {
		return fmt.Errorf("%w: sides must be between 1 and %d, got %d in %q", ErrInvalidExpression, MaxSides, e.Sides, expr)
	}
	return nil
}

// Roller rolls expressions. The zero value uses the automatically seeded
// global source of [math/rand/v2] and is safe for concurrent use.
type Roller struct {
	rng *rand.Rand
}

// NewRoller returns a Roller drawing from src. A [rand.Rand] built on a
// caller-supplied source is not safe for concurrent use.
func NewRoller(src rand.Source) *Roller {
	return &Roller{rng: rand.New(src)}
}

func (r *Roller) intN(n int) int {
	if r == nil || r.rng == nil {
		return rand.IntN(n)
	}
	return r.rng.IntN(n)
}

// Roll rolls e. Each die is uniform in [1, e.Sides].
func (r *Roller) Roll(e Expression) Result {
	res := Result{Expression: e, Rolls: make([]int, e.Count), Total: e.Modifier}
	for i := range e.Count {
		v := r.intN(e.Sides) + 1
		res.Rolls[i] = v
		res.Total += v
	}
	return res
}

// Roll parses expr and rolls it with the global source.
func Roll(expr string) (Result, error) {
	e, err := Parse(expr)
	if err != nil {
		return Result{}, err
	}
	var r *Roller
	return r.Roll(e), nil
}

// Format renders res the way the bot replies to /roll, e.g.
// "🎲 2d6+3: [4, 1] + 3 = **8**". A single unmodified die prints just the total.
func Format(res Result) string {
	e := res.Expression
	if e.Count == 1 && e.Modifier == 0 {
		return fmt.Sprintf("🎲 d%d: **%d**", e.Sides, res.Total)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎲 %s: [", e)
	for i, v := range res.Rolls {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteString("]")
	switch {
	case e.Modifier > 0:
		fmt.Fprintf(&b, " + %d", e.Modifier)
	case e.Modifier < 0:
		fmt.Fprintf(&b, " - %d", -e.Modifier)
	}
	fmt.Fprintf(&b, " = **%d**", res.Total)
	return b.String()
}
