package ports

// Operator is the decision port the engine consults synchronously when
// startup reconciliation needs a human choice. A test harness supplies
// canned answers.
type Operator interface {
	// Confirm asks a yes/no question and returns the answer.
	Confirm(prompt string) (bool, error)
}
