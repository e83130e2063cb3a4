package utils

import "fmt"

// ErrorWrapOrNil prefixes err with msg, passing nil through.
func ErrorWrapOrNil(err error, msg string) error {
	if err == nil {
		return nil
	}

	if msg == "" {
		return err
	}

	return fmt.Errorf("%s: %w", msg, err)
}
