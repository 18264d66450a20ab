package notify

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alejandrodnm/ladderbot/internal/ports"
)

// StdinOperator implements ports.Operator over an interactive terminal.
type StdinOperator struct {
	in  *bufio.Reader
	out io.Writer
}

var _ ports.Operator = (*StdinOperator)(nil)

// NewStdinOperator builds the interactive operator port.
func NewStdinOperator() *StdinOperator {
	return &StdinOperator{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewReaderOperator builds an operator port over arbitrary streams, used
// by tests to supply canned answers.
func NewReaderOperator(in io.Reader, out io.Writer) *StdinOperator {
	return &StdinOperator{in: bufio.NewReader(in), out: out}
}

// Confirm asks a yes/no question and blocks for the answer.
func (o *StdinOperator) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(o.out, "%s [y/n]: ", prompt)
	line, err := o.in.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("notify.Confirm: read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// CannedOperator implements ports.Operator with a fixed answer sequence.
type CannedOperator struct {
	answers []bool
	next    int
}

var _ ports.Operator = (*CannedOperator)(nil)

// NewCannedOperator returns an operator that answers from the given
// sequence, repeating the last answer when exhausted.
func NewCannedOperator(answers ...bool) *CannedOperator {
	return &CannedOperator{answers: answers}
}

func (o *CannedOperator) Confirm(string) (bool, error) {
	if len(o.answers) == 0 {
		return false, nil
	}
	if o.next >= len(o.answers) {
		return o.answers[len(o.answers)-1], nil
	}
	a := o.answers[o.next]
	o.next++
	return a, nil
}
