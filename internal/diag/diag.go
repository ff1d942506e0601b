// Package diag implements the line-oriented diagnostic console used to
// exercise the inputs and outputs by hand while the controller is suspended.
package diag

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/sweeney/beam-controller/internal/adc"
	"github.com/sweeney/beam-controller/internal/gpio"
	"github.com/sweeney/beam-controller/internal/logic"
)

// ErrUnknownCommand is returned by Exec for an unrecognised command word.
var ErrUnknownCommand = errors.New("unknown command")

// Output receives levels set from the console.
type Output interface {
	Apply(s logic.Step) error
}

const helpText = `commands:
  help              show this text
  read              print battery voltage, light counts and request line
  level N           set the light to N (0..%d)
  on                set the light to full
  off               set the light to zero
  indicator on|off  force the indicator while keeping the light level
  exit              leave diagnostics (also: quit, q)
`

// Console executes diagnostic commands against the hardware collaborators.
// It is not safe for concurrent use.
type Console struct {
	analog   adc.Reader
	request  gpio.Reader
	out      Output
	maxLevel int
	w        io.Writer

	level int
}

// New creates a console writing replies to w. level is the output level in
// effect when the console takes over.
func New(analog adc.Reader, request gpio.Reader, out Output, maxLevel, level int, w io.Writer) *Console {
	return &Console{
		analog:   analog,
		request:  request,
		out:      out,
		maxLevel: maxLevel,
		w:        w,
		level:    level,
	}
}

// Level returns the last level applied to the output.
func (c *Console) Level() int {
	return c.level
}

// Exec runs one command line. exit is true when the user asked to leave.
// Blank lines are ignored.
func (c *Console) Exec(line string) (exit bool, err error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return false, nil
	}

	cmd, rest := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintf(c.w, helpText, c.maxLevel)
	case "read":
		return false, c.read()
	case "level":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: level N")
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 || n > c.maxLevel {
			return false, fmt.Errorf("level %q must be an integer in 0..%d", rest[0], c.maxLevel)
		}
		return false, c.setLevel(n)
	case "on":
		return false, c.setLevel(c.maxLevel)
	case "off":
		return false, c.setLevel(0)
	case "indicator":
		if len(rest) != 1 || (rest[0] != "on" && rest[0] != "off") {
			return false, fmt.Errorf("usage: indicator on|off")
		}
		complement := 0
		if rest[0] == "on" {
			complement = c.maxLevel
		}
		if err := c.out.Apply(logic.Step{Level: c.level, Complement: complement}); err != nil {
			return false, fmt.Errorf("indicator: %w", err)
		}
		fmt.Fprintf(c.w, "indicator %s\n", rest[0])
	case "exit", "quit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("%w %q (try help)", ErrUnknownCommand, cmd)
	}
	return false, nil
}

func (c *Console) read() error {
	var errs []error

	volts, err := c.analog.Voltage()
	if err != nil {
		errs = append(errs, fmt.Errorf("voltage: %w", err))
	} else {
		fmt.Fprintf(c.w, "voltage  %.2f V\n", volts)
	}

	counts, err := c.analog.Light()
	if err != nil {
		errs = append(errs, fmt.Errorf("light: %w", err))
	} else {
		fmt.Fprintf(c.w, "light    %.0f\n", counts)
	}

	req, err := c.request.Read()
	if err != nil {
		errs = append(errs, fmt.Errorf("request: %w", err))
	} else {
		fmt.Fprintf(c.w, "request  %t\n", req)
	}

	return errors.Join(errs...)
}

func (c *Console) setLevel(n int) error {
	if err := c.out.Apply(logic.Step{Level: n, Complement: c.maxLevel - n}); err != nil {
		return fmt.Errorf("level %d: %w", n, err)
	}
	c.level = n
	fmt.Fprintf(c.w, "level %d\n", n)
	return nil
}

// Run reads commands from r until exit or end of input. Command errors are
// reported on the console and do not stop it.
func (c *Console) Run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		exit, err := c.Exec(sc.Text())
		if err != nil {
			fmt.Fprintf(c.w, "error: %v\n", err)
		}
		if exit {
			return nil
		}
	}
	return sc.Err()
}
