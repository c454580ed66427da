package library

// Decision answers a yes/no prompt. The shell asks on the terminal; tests
// return a fixed answer.
type Decision func(prompt string) bool

// Always is a Decision that accepts every prompt.
func Always(string) bool { return true }

// Confirmed runs action only when decide accepts prompt. ran is false when the
// user declined; err is whatever action returned.
func Confirmed(decide Decision, prompt string, action func() error) (ran bool, err error) {
	if decide == nil || !decide(prompt) {
		return false, nil
	}
	return true, action()
}
