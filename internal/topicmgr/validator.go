package topicmgr

import (
	"fmt"
	"regexp"

	"github.com/underbots/ipcbus/internal/transport"
)

// maxNameLength bounds topic names, which end up as socket path suffixes.
const maxNameLength = 100

// Validator checks topic names and the addresses they resolve to.
type Validator struct {
	namePattern *regexp.Regexp
}

// NewValidator creates a new topic validator
func NewValidator() *Validator {
	// Lowercase words joined by dots: world, ssl_vision, sim.control
	return &Validator{
		namePattern: regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`),
	}
}

// ValidateName checks if a topic name follows the naming convention
func (v *Validator) ValidateName(name string) error {
	if name == "" {
		return &TopicError{
			Type:    ErrorValidationFailed,
			Message: "name cannot be empty",
		}
	}

	if len(name) > maxNameLength {
		return &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   name,
			Message: fmt.Sprintf("name too long (max %d characters)", maxNameLength),
		}
	}

	if !v.namePattern.MatchString(name) {
		return &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   name,
			Message: "name must be lowercase words of letters, digits and underscores joined by dots",
		}
	}

	return nil
}

// ValidateAddress checks that addr is usable as the endpoint of topic.
func (v *Validator) ValidateAddress(topic, addr string) error {
	if _, err := transport.ParseAddress(addr); err != nil {
		return &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   topic,
			Message: "unusable address",
			Cause:   err,
		}
	}
	return nil
}
