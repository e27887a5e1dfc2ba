package notifications

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Template is one renderable subject/body pair.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Templates holds the notification templates, one per event type.
type Templates struct {
	ReminderDue Template `yaml:"reminder_due"`
}

// ReminderData is the render context of a reminder.due notification.
type ReminderData struct {
	Title    string
	RemindAt time.Time
	DueAt    *time.Time
}

// DueLine formats the due date for the body, or an empty string when the
// task has none.
func (d ReminderData) DueLine() string {
	if d.DueAt == nil {
		return ""
	}
	return fmt.Sprintf("It is due %s.", d.DueAt.Format("Mon, 02 Jan 2006 15:04 MST"))
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() Templates {
	return Templates{
		ReminderDue: Template{
			Subject: "Reminder: {{.Title}}",
			Body: "This is your reminder for the task \"{{.Title}}\".\n" +
				"{{with .DueLine}}{{.}}\n{{end}}" +
				"\nSent by Taskloop.\n",
		},
	}
}

// LoadTemplates returns the built-in templates overlaid with the YAML file
// at path. An empty path selects the defaults; fields absent from the file
// keep their built-in values.
func LoadTemplates(path string) (Templates, error) {
	templates := DefaultTemplates()
	if path == "" {
		return templates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return templates, fmt.Errorf("failed to read templates file: %w", err)
	}

	var overrides Templates
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return templates, fmt.Errorf("failed to parse templates file: %w", err)
	}

	if overrides.ReminderDue.Subject != "" {
		templates.ReminderDue.Subject = overrides.ReminderDue.Subject
	}
	if overrides.ReminderDue.Body != "" {
		templates.ReminderDue.Body = overrides.ReminderDue.Body
	}
	return templates, nil
}

// Render executes the template against data.
func (t Template) Render(data any) (subject, body string, err error) {
	subject, err = render("subject", t.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err = render("body", t.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return b.String(), nil
}
