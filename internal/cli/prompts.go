package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/shopspring/decimal"
)

// Prompter asks the user for input during an interactive negotiation.
type Prompter interface {
	Confirm(message string, def bool) (bool, error)
	Select(message string, options []string) (string, error)
	Amount(message string) (float64, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Confirm(message string, def bool) (bool, error) {
	answer := def
	prompt := &survey.Confirm{
		Message: message,
		Default: def,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false, err
	}
	return answer, nil
}

func (surveyPrompter) Select(message string, options []string) (string, error) {
	var selected string
	prompt := &survey.Select{
		Message: message,
		Options: options,
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}

func (surveyPrompter) Amount(message string) (float64, error) {
	var raw string
	prompt := &survey.Input{
		Message: message,
		Help:    "Dollar amount, for example 180 or $179.50",
	}
	err := survey.AskOne(prompt, &raw, survey.WithValidator(func(val interface{}) error {
		_, err := parseAmount(val.(string))
		return err
	}))
	if err != nil {
		return 0, err
	}
	return parseAmount(raw)
}

// parseAmount accepts "180", "$179.50" and "1,200".
func parseAmount(raw string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	return d.Round(2).InexactFloat64(), nil
}
