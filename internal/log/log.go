// Package log holds the terminal progress helpers used by one-shot
// commands.
package log

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
)

// WithSpinner runs fn while a spinner with the given message animates
// on the terminal. The message stays on screen with a done marker once
// fn returns; fn's error is passed through untouched.
func WithSpinner(message string, fn func() error) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		return fmt.Errorf("failed to color spinner: %w", err)
	}

	s.FinalMSG = fmt.Sprintf("%s \033[32mdone\033[0m\n", message)
	s.Start()
	defer s.Stop()

	return fn()
}
