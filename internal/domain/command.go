package domain

// CommandKind — тип команды на шине.
type CommandKind string

const (
	// CommandEnqueue — поставить запрос в очередь планировщика.
	CommandEnqueue CommandKind = "ENQUEUE"

	// CommandCancel — отменить задачу с указанным ID.
	CommandCancel CommandKind = "CANCEL"

	// CommandCancelAll — отменить все выполняющиеся задачи.
	CommandCancelAll CommandKind = "CANCEL_ALL"
)

// Command — команда, рассылаемая всем подписчикам шины.
type Command struct {
	Kind CommandKind `json:"kind"`

	// Request заполнен для CommandEnqueue.
	Request Request `json:"request,omitzero"`

	// ID заполнен для CommandCancel.
	ID string `json:"id,omitempty"`
}

// EnqueueCommand создаёт команду постановки в очередь.
func EnqueueCommand(req Request) Command {
	return Command{Kind: CommandEnqueue, Request: req, ID: req.ID}
}

// CancelCommand создаёт команду отмены одной задачи.
func CancelCommand(id string) Command {
	return Command{Kind: CommandCancel, ID: id}
}

// CancelAllCommand создаёт команду отмены всех задач.
func CancelAllCommand() Command {
	return Command{Kind: CommandCancelAll}
}

// Cancels возвращает true, если команда отменяет задачу id.
func (c Command) Cancels(id string) bool {
	switch c.Kind {
	case CommandCancelAll:
		return true
	case CommandCancel:
		return c.ID == id
	default:
		return false
	}
}
