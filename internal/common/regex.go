package common

import (
	"fmt"
	"regexp"
)

// identifierPattern matches plain SQL identifiers that are safe to format into a query.
const identifierPattern = `^[a-z][a-z0-9_]{0,63}$`

// MatchRegex compiles and matches a regex pattern against a string.
// Returns true if the pattern matches, false otherwise.
// Returns an error if the pattern is invalid.
func MatchRegex(pattern, text string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

// ValidateIdentifier rejects table or column names that are not plain lowercase identifiers.
func ValidateIdentifier(name string) error {
	ok, err := MatchRegex(identifierPattern, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: identifier %q", ErrInvalidConfig, name)
	}
	return nil
}
