package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/task/models"
	"github.com/taskloop/taskloop/internal/task/repository"
)

const maxSuggestions = 5

// notFoundError carries task-title suggestions back to the model so it can
// ask the user to disambiguate.
type notFoundError struct {
	message     string
	suggestions []string
}

func (e *notFoundError) Error() string { return e.message }

// findTask resolves a task identifier the way users phrase them: an exact
// id, an exact title, or a unique title substring. Ambiguity and misses
// return suggestions instead of a match.
func (r *Registry) findTask(ctx context.Context, userID, identifier string) (*models.Task, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, &notFoundError{message: "Task identifier cannot be empty"}
	}

	if _, err := uuid.Parse(identifier); err == nil {
		task, err := r.tasks.GetTask(ctx, userID, identifier)
		if err == nil {
			return task, nil
		}
		if !apperr.IsNotFound(err) {
			return nil, err
		}
		// Unknown id; fall through to title matching.
	}

	all, err := r.tasks.ListTasks(ctx, userID, &repository.Filter{})
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(identifier)
	var exact, partial []*models.Task
	for _, task := range all {
		title := strings.ToLower(task.Title)
		if title == lower {
			exact = append(exact, task)
		}
		if strings.Contains(title, lower) {
			partial = append(partial, task)
		}
	}

	if len(exact) == 1 {
		return exact[0], nil
	}
	switch len(partial) {
	case 1:
		return partial[0], nil
	case 0:
		return nil, &notFoundError{
			message:     fmt.Sprintf("No task found matching '%s'.", identifier),
			suggestions: titles(all),
		}
	default:
		return nil, &notFoundError{
			message:     fmt.Sprintf("Multiple tasks match '%s'. Please be more specific.", identifier),
			suggestions: titles(partial),
		}
	}
}

func titles(tasks []*models.Task) []string {
	n := len(tasks)
	if n > maxSuggestions {
		n = maxSuggestions
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = tasks[i].Title
	}
	return out
}
