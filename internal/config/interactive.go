package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
)

// Prompt asks for the most common settings in a terminal form and stores the
// answers in c.
func Prompt(c *Config) error {
	tick := c.TickInterval.String()
	port := strconv.Itoa(c.Dashboard.Port)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session ID").
				Description("Stamped on every batch; usually INTERVIEW_TAKEN_ID.").
				Value(&c.SessionID),
			huh.NewInput().
				Title("Tick interval").
				Description("How often pending changes are sent, e.g. 10s.").
				Value(&tick).
				Validate(validDuration),
			huh.NewMultiSelect[string]().
				Title("Sinks").
				Options(huh.NewOptions(KnownSinks...)...).
				Value(&c.Sinks),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("S3 bucket").
				Value(&c.S3.Bucket),
			huh.NewInput().
				Title("S3 region").
				Value(&c.S3.Region),
			huh.NewInput().
				Title("S3 key prefix").
				Value(&c.S3.Prefix),
		).WithHideFunc(func() bool { return !c.HasSink(SinkS3) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Webhook URL").
				Value(&c.HTTP.URL),
		).WithHideFunc(func() bool { return !c.HasSink(SinkHTTP) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Dashboard port").
				Description("0 disables the live dashboard.").
				Value(&port).
				Validate(validPort),
			huh.NewConfirm().
				Title("Track files that already exist at startup?").
				Value(&c.SeedExisting),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("config form: %w", err)
	}

	d, err := time.ParseDuration(tick)
	if err != nil {
		return err
	}
	c.TickInterval = d
	c.Dashboard.Port, _ = strconv.Atoi(port)
	return nil
}

func validDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration: %s", s)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validPort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("must be a number between 0 and 65535")
	}
	return nil
}
