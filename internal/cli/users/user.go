package users

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habittrack/internal/cli"
	"github.com/julianstephens/habittrack/internal/tracker"
)

// UserAddCmd registers a user from the command line. Missing values are
// prompted for.
type UserAddCmd struct {
	Username string `help:"Display name."`
	Email    string `help:"Login email, must be unique."`
	Password string `help:"Password. Prompted without echo when omitted." env:"HABITTRACK_USER_PASSWORD"`
}

func (c *UserAddCmd) Run(ctx *cli.Context) error {
	if err := c.prompt(); err != nil {
		return err
	}

	svc, err := ctx.Tracker()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer ctx.Close()

	user, err := svc.Register(ctx.Ctx(), tracker.RegisterInput{
		Username: c.Username,
		Email:    c.Email,
		Password: c.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	ctx.Println(cli.OK("User created"))
	ctx.Printf("   ID:    %s\n", user.ID)
	ctx.Printf("   Email: %s\n", user.Email)
	return nil
}

func (c *UserAddCmd) prompt() error {
	var fields []huh.Field
	if strings.TrimSpace(c.Username) == "" {
		fields = append(fields, huh.NewInput().Title("Username").Value(&c.Username).Validate(required("username")))
	}
	if strings.TrimSpace(c.Email) == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(&c.Email).Validate(required("email")))
	}
	if c.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&c.Password).
			Validate(required("password")))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
