package main

import (
	"errors"

	"github.com/charmbracelet/huh"
)

func promptPassword() (string, error) {
	var password, confirm string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				Description("At least 12 characters").
				EchoMode(huh.EchoModePassword).
				Value(&password),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != password {
						return errors.New("passwords do not match")
					}

					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return "", err
	}

	return password, nil
}
