package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

// SeedFile is the YAML document read by the seed command.
type SeedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Students []SeedStudent `yaml:"students"`
	Sessions []SeedSession `yaml:"sessions"`
}

// SeedAccount is a login for the built-in identity provider.
type SeedAccount struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// SeedStudent is a student record.
type SeedStudent struct {
	Name            string `yaml:"name"`
	Email           string `yaml:"email"`
	Phone           string `yaml:"phone"`
	PaymentDueDate  string `yaml:"payment_due_date"`
	Amount          string `yaml:"amount"`
	ClassesPerMonth string `yaml:"classes_per_month"`
	PixKey          string `yaml:"pix_key"`
	Score           int    `yaml:"score"`
}

// SeedSession is a training session.
type SeedSession struct {
	Date        string `yaml:"date"`
	Time        string `yaml:"time"`
	Capacity    int    `yaml:"capacity"`
	Methodology string `yaml:"methodology"`
}

// SeedSummary counts what a seed run created and skipped.
type SeedSummary struct {
	Accounts int
	Students int
	Sessions int
	Skipped  int
}

// seedOperator is the caller recorded in service logs for seeded writes.
var seedOperator = application.Identity{Email: "seed@presenca.local", DisplayName: "seed"}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load accounts, students and sessions from a YAML file",
		Long: `Load accounts, students and sessions from a YAML file.

Accounts and students whose email already exists are skipped, as are
sessions with the same date and time as an existing one, so a file can be
applied more than once.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := ReadSeedFile(file)
			if err != nil {
				return err
			}

			// Seeding is an operator action and bypasses the administrator allowlist.
			allowAll := application.PolicyFunc(func(application.Identity) bool { return true })
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), allowAll)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := applySeed(cmd.Context(), a, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d account(s), %d student(s), %d session(s); skipped %d\n",
				summary.Accounts, summary.Students, summary.Sessions, summary.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// ReadSeedFile parses the YAML seed file at path.
func ReadSeedFile(path string) (SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return SeedFile{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

func applySeed(ctx context.Context, a *app, seed SeedFile) (SeedSummary, error) {
	var summary SeedSummary

	for _, account := range seed.Accounts {
		_, err := a.auth.CreateAccount(ctx, application.AccountInput{
			Email:       account.Email,
			DisplayName: account.Name,
			Password:    account.Password,
		})
		switch {
		case errors.Is(err, application.ErrAlreadyExists):
			summary.Skipped++
		case err != nil:
			return summary, fmt.Errorf("account %s: %w", account.Email, err)
		default:
			summary.Accounts++
		}
	}

	for _, student := range seed.Students {
		_, err := a.students.CreateStudent(ctx, seedOperator, application.StudentInput{
			Name:            student.Name,
			Email:           student.Email,
			Phone:           student.Phone,
			PaymentDueDate:  student.PaymentDueDate,
			Amount:          student.Amount,
			ClassesPerMonth: student.ClassesPerMonth,
			PixKey:          student.PixKey,
			Score:           student.Score,
		})
		switch {
		case errors.Is(err, application.ErrAlreadyExists):
			summary.Skipped++
		case err != nil:
			return summary, fmt.Errorf("student %s: %w", student.Email, err)
		default:
			summary.Students++
		}
	}

	existing, err := application.Collect(a.attendance.ListSessions(ctx, application.SessionFilter{Window: application.WindowAll}))
	if err != nil {
		return summary, fmt.Errorf("list sessions: %w", err)
	}
	slots := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		slots[item.Session.Date+" "+item.Session.Time] = struct{}{}
	}

	for _, session := range seed.Sessions {
		key := session.Date + " " + session.Time
		if _, ok := slots[key]; ok {
			summary.Skipped++
			continue
		}
		if _, err := a.sessions.CreateSession(ctx, seedOperator, application.SessionInput{
			Date:        session.Date,
			Time:        session.Time,
			Capacity:    session.Capacity,
			Methodology: session.Methodology,
		}); err != nil {
			return summary, fmt.Errorf("session %s: %w", key, err)
		}
		slots[key] = struct{}{}
		summary.Sessions++
	}

	return summary, nil
}
