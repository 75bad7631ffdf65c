package health

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Directory returns a Checker that passes while path is an existing
// directory.
func Directory(name, path string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			fi, err := os.Stat(path)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", path)
			}
			return nil
		},
	}
}

// Ready returns a Checker that passes while ready reports true. It adapts
// state flags such as "gateway connected" that have no probe of their own.
func Ready(name string, ready func() bool, reason string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !ready() {
				return errors.New(reason)
			}
			return nil
		},
	}
}

// Pinger is implemented by dependencies that can be probed over the network,
// such as a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a Checker that probes p.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Optional marks c as optional: its failure degrades readiness instead of
// failing it.
func Optional(c Checker) Checker {
	c.Optional = true
	return c
}
