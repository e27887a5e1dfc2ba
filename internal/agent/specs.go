// Package agent implements the assistant tool registry: the tool
// definitions advertised to the model and the dispatcher that executes
// them against the task service.
package agent

import "github.com/taskloop/taskloop/internal/llm"

var priorityEnum = []string{"low", "medium", "high"}
var recurrenceEnum = []string{"none", "daily", "weekly", "monthly"}
var sortFieldEnum = []string{"created_at", "updated_at", "due_at", "priority", "title"}
var sortOrderEnum = []string{"asc", "desc"}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func strEnum(description string, values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": description}
}

func boolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

const identifierDesc = "The task title (partial match) or exact ID"

// toolSpecs is the static tool surface. The same definitions back the chat
// assistant, the tool invocation API, and the MCP server.
var toolSpecs = []llm.ToolDef{
	{
		Name:        "add_task",
		Description: "Create a new todo task. ALWAYS call this function when the user wants to create a task - the system handles natural language date parsing automatically.",
		Parameters: objectSchema(map[string]any{
			"title":       str("The title of the task"),
			"description": str("Optional details about the task"),
			"priority":    strEnum("Task priority level", priorityEnum),
			"due_date":    str("Due date - accepts natural language like 'tomorrow', 'next Monday', 'in 3 days', or ISO format. Pass the user's exact words."),
			"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "List of tags to add"},
		}, "title"),
	},
	{
		Name:        "list_tasks",
		Description: "List all tasks with optional filters and sorting.",
		Parameters: objectSchema(map[string]any{
			"completed":  boolean("Filter by completion status"),
			"priority":   strEnum("Filter by priority", priorityEnum),
			"tag":        str("Filter by tag name"),
			"overdue":    boolean("Show only overdue tasks"),
			"sort_by":    strEnum("Sort field", sortFieldEnum),
			"sort_order": strEnum("Sort order", sortOrderEnum),
		}),
	},
	{
		Name:        "complete_task",
		Description: "Mark a task as completed using its title or ID.",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
		}, "task_identifier"),
	},
	{
		Name:        "update_task",
		Description: "Update a task's title, description, priority, due date, or recurrence.",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
			"title":           str("New title"),
			"description":     str("New description"),
			"priority":        strEnum("New priority", priorityEnum),
			"due_date":        str("New due date"),
			"recurrence":      strEnum("Recurrence pattern", recurrenceEnum),
		}, "task_identifier"),
	},
	{
		Name:        "delete_task",
		Description: "Delete a task permanently.",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
		}, "task_identifier"),
	},
	{
		Name:        "set_priority",
		Description: "Set the priority of a task (e.g., 'set priority of Buy groceries to high').",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
			"priority":        strEnum("Priority level", priorityEnum),
		}, "task_identifier", "priority"),
	},
	{
		Name:        "filter_by_priority",
		Description: "Show all tasks with a specific priority (e.g., 'show high priority tasks').",
		Parameters: objectSchema(map[string]any{
			"priority": strEnum("Priority level to filter by", priorityEnum),
		}, "priority"),
	},
	{
		Name:        "add_tag",
		Description: "Add a tag to a task (e.g., 'add tag work to Finish report').",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
			"tag":             str("Tag name to add"),
		}, "task_identifier", "tag"),
	},
	{
		Name:        "remove_tag",
		Description: "Remove a tag from a task.",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
			"tag":             str("Tag name to remove"),
		}, "task_identifier", "tag"),
	},
	{
		Name:        "filter_by_tag",
		Description: "Show all tasks with a specific tag (e.g., 'show tasks tagged work').",
		Parameters: objectSchema(map[string]any{
			"tag": str("Tag name to filter by"),
		}, "tag"),
	},
	{
		Name:        "set_due_date",
		Description: "Set the due date of a task. The system automatically parses natural language dates - pass the user's exact words.",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
			"due_date":        str("Due date - accepts 'tomorrow', 'next Monday', 'in 3 days', etc. Pass exactly what the user said."),
		}, "task_identifier", "due_date"),
	},
	{
		Name:        "show_overdue",
		Description: "Show all overdue tasks (past due date and not completed).",
		Parameters:  objectSchema(map[string]any{}),
	},
	{
		Name:        "search_tasks",
		Description: "Search tasks by keyword in title and description (e.g., 'search for grocery').",
		Parameters: objectSchema(map[string]any{
			"query": str("Search keyword"),
		}, "query"),
	},
	{
		Name:        "combined_filter",
		Description: "Filter tasks with multiple criteria (e.g., 'show high priority pending tasks sorted by due date').",
		Parameters: objectSchema(map[string]any{
			"priority":   strEnum("Filter by priority", priorityEnum),
			"tag":        str("Filter by tag"),
			"completed":  boolean("Filter by completion status"),
			"overdue":    boolean("Filter for overdue tasks only"),
			"sort_by":    strEnum("Sort field", sortFieldEnum),
			"sort_order": strEnum("Sort order", sortOrderEnum),
		}),
	},
	{
		Name:        "sort_tasks",
		Description: "Sort tasks by a specific field (e.g., 'sort by due date').",
		Parameters: objectSchema(map[string]any{
			"sort_by":    strEnum("Field to sort by", sortFieldEnum),
			"sort_order": strEnum("Sort order (default: desc)", sortOrderEnum),
		}, "sort_by"),
	},
	{
		Name:        "set_reminder",
		Description: "Set a reminder for a task. Supports relative times like '1 hour before' (requires a due date) or absolute times like 'tomorrow at 9am'.",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
			"remind_at":       str("Reminder time - e.g., '1 hour before', '30 minutes before', 'tomorrow at 9am'. Pass exactly what the user said."),
		}, "task_identifier", "remind_at"),
	},
	{
		Name:        "set_recurrence",
		Description: "Set a recurrence pattern for a task (e.g., 'make this task repeat weekly').",
		Parameters: objectSchema(map[string]any{
			"task_identifier": str(identifierDesc),
			"recurrence":      strEnum("Recurrence pattern", recurrenceEnum),
		}, "task_identifier", "recurrence"),
	},
}

// Specs returns the tool definitions advertised to the model.
func Specs() []llm.ToolDef {
	return toolSpecs
}
